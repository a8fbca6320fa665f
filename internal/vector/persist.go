package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const indexFileName = "index.bin"

// save writes the collection to disk. Format: dimensions (4), count (4),
// then per entry: idLen (4), id, textLen (4), text, metaLen (4), metadata
// JSON, vector (dimensions*4 bytes), all little-endian. The file is written
// to a temp path and renamed so readers never observe a partial index.
// Caller must hold the write lock.
func (c *Collection) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}
	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)

	writeErr := func() error {
		if err := binary.Write(w, binary.LittleEndian, uint32(c.dimensions)); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(c.entries))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for _, e := range c.entries {
			meta, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			for _, field := range [][]byte{[]byte(e.ID), []byte(e.Text), meta} {
				if err := binary.Write(w, binary.LittleEndian, uint32(len(field))); err != nil {
					return fmt.Errorf("write field length: %w", err)
				}
				if _, err := w.Write(field); err != nil {
					return fmt.Errorf("write field: %w", err)
				}
			}
			if _, err := w.Write(float32SliceToBytes(e.Vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return writeErr
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

// load reads the persisted index, replacing in-memory contents. A missing
// file leaves the collection empty without error.
func (c *Collection) load() error {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	c.dimensions = int(dim)
	c.entries = make([]Entry, 0, n)
	c.byID = make(map[string]int, n)
	vecBuf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		id, err := readField(r)
		if err != nil {
			return fmt.Errorf("read entry %d id: %w", i, err)
		}
		text, err := readField(r)
		if err != nil {
			return fmt.Errorf("read entry %d text: %w", i, err)
		}
		metaRaw, err := readField(r)
		if err != nil {
			return fmt.Errorf("read entry %d metadata: %w", i, err)
		}
		var meta map[string]string
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return fmt.Errorf("decode entry %d metadata: %w", i, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return fmt.Errorf("read entry %d vector: %w", i, err)
		}
		c.byID[string(id)] = len(c.entries)
		c.entries = append(c.entries, Entry{
			ID:       string(id),
			Vector:   bytesToFloat32Slice(vecBuf),
			Text:     string(text),
			Metadata: meta,
		})
	}
	return nil
}

func readField(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
