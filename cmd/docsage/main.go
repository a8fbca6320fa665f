// Package main is the docsage CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/embedding"
	"github.com/docsage/docsage/internal/keyword"
	"github.com/docsage/docsage/internal/llm"
	"github.com/docsage/docsage/internal/memory"
	"github.com/docsage/docsage/internal/models"
	"github.com/docsage/docsage/internal/rag"
	"github.com/docsage/docsage/internal/server"
	"github.com/docsage/docsage/internal/storage"
	"github.com/docsage/docsage/internal/vector"
	"github.com/docsage/docsage/internal/watcher"
	"github.com/docsage/docsage/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docsage/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// uses the project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "delete":
		runDelete()
	case "version", "--version", "-v":
		fmt.Printf("docsage version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: docsage <command> [flags]

Commands:
  server    Start the HTTP API server
  ingest    Ingest a PDF document from a file path
  ask       Ask a question about an ingested document
  status    Show document and conversation counts
  delete    Delete a document and its collection
  version   Print the version
  help      Show this help`)
}

// components holds the wired application parts shared by the subcommands.
type components struct {
	Storage  storage.Storage
	Vectors  *vector.Store
	Search   *keyword.BleveIndex
	Embedder embedding.Embedder
	Engine   *rag.Engine
	Ingestor *rag.Ingestor
	Logger   *zap.Logger
}

func (c *components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Search != nil {
		_ = c.Search.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debugMode bool) (*components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	var vecOpts []vector.StoreOption
	if debugMode {
		vecOpts = append(vecOpts, vector.WithLogger(logger))
	}
	vectors, err := vector.NewStore(cfg.Storage.VectorStoreDir, vecOpts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	search, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("keyword index: %w", err)
	}

	var embedOpts []embedding.ClientOption
	if debugMode {
		embedOpts = append(embedOpts, embedding.WithLogger(logger))
	}
	embedder, err := embedding.NewClient(&cfg.Embedding, embedOpts...)
	if err != nil {
		_ = search.Close()
		_ = store.Close()
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	var llmOpts []llm.ClientOption
	if debugMode {
		llmOpts = append(llmOpts, llm.WithLogger(logger))
	}
	generator, err := llm.NewClient(&cfg.Generation, llmOpts...)
	if err != nil {
		_ = embedder.Close()
		_ = search.Close()
		_ = store.Close()
		return nil, fmt.Errorf("generation client: %w", err)
	}

	ingestor, err := rag.NewIngestor(embedder, vectors, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap,
		rag.WithIngestStorage(store),
		rag.WithSearchIndexer(search),
		rag.WithIngestLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	engine, err := rag.NewEngine(embedder, generator, cfg.Retrieval.TopK,
		rag.WithStorage(store),
		rag.WithExcerptLength(cfg.Retrieval.ExcerptLength),
		rag.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &components{
		Storage:  store,
		Vectors:  vectors,
		Search:   search,
		Embedder: embedder,
		Engine:   engine,
		Ingestor: ingestor,
		Logger:   logger,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled && cfg.Watch.Directory != "" {
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		ingestor := comps.Ingestor
		watchSvc := watcher.NewWatcher(cfg.Watch.Directory, func(path string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			doc, err := ingestor.IngestFile(ctx, path, nil)
			if err != nil {
				logger.Warn("drop ingestion failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("dropped document ingested",
				zap.String("id", doc.ID),
				zap.String("path", path),
				zap.Int("chunks", doc.ChunkCount),
			)
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(comps.Engine, comps.Ingestor, comps.Storage, comps.Vectors, comps.Search, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docsage ingest [flags] <file.pdf>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger, cfg.Debug || *debug)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	doc, err := comps.Ingestor.IngestFile(ctx, path, func(stage string) {
		fmt.Printf("  %s\n", stage)
	})
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %s\n", doc.Filename)
	fmt.Printf("  id:     %s\n", doc.ID)
	fmt.Printf("  chunks: %d\n", doc.ChunkCount)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docID := fs.String("doc", "", "document ID to ask about (required)")
	sessionID := fs.String("session", "", "session ID; reuse to continue a conversation")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *docID == "" || question == "" {
		fmt.Println("Usage: docsage ask -doc <document-id> [-session <id>] <question>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger, cfg.Debug || *debug)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	doc, err := comps.Storage.GetDocument(ctx, *docID)
	if err != nil {
		fmt.Printf("Document not found: %s\n", *docID)
		os.Exit(1)
	}
	if doc.Status != models.StatusCompleted {
		fmt.Printf("Document is not ready (status: %s)\n", doc.Status)
		os.Exit(1)
	}

	collection, err := comps.Vectors.Open(doc.ID)
	if err != nil {
		fmt.Printf("Failed to open collection: %v\n", err)
		os.Exit(1)
	}

	sid := *sessionID
	if sid == "" {
		sid = uuid.New().String()
	}
	session := rag.NewSession(sid, doc.ID, collection)

	convs, err := comps.Storage.GetConversationsBySession(ctx, sid)
	if err == nil && len(convs) > 0 {
		exchanges := make([]memory.Exchange, 0, len(convs))
		for _, c := range convs {
			exchanges = append(exchanges, memory.Exchange{User: c.UserMessage, Assistant: c.AssistantMessage})
		}
		session.Restore(exchanges)
	}

	result, err := comps.Engine.Ask(ctx, session, question)
	if err != nil {
		fmt.Printf("Ask failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range result.Sources {
			fmt.Printf("  %d. (page %s) %s\n", i+1, src.Metadata[vector.MetaKeyPage], src.Excerpt)
		}
	}
	fmt.Printf("\nsession: %s\n", sid)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	vectors, err := vector.NewStore(cfg.Storage.VectorStoreDir)
	if err != nil {
		fmt.Printf("Failed to open vector store: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docCount, err := store.CountDocuments(ctx)
	if err != nil {
		fmt.Printf("Failed to count documents: %v\n", err)
		os.Exit(1)
	}
	convCount, _ := store.CountConversations(ctx)
	names, _ := vectors.CollectionNames()

	fmt.Printf("documents:     %d\n", docCount)
	fmt.Printf("conversations: %d\n", convCount)
	fmt.Printf("collections:   %d\n", len(names))

	docs, err := store.ListDocuments(ctx, 0, 20)
	if err == nil && len(docs) > 0 {
		fmt.Println("\nRecent documents:")
		for _, d := range docs {
			fmt.Printf("  %s  %-10s  %4d chunks  %s\n", d.ID, d.Status, d.ChunkCount, d.Filename)
		}
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docsage delete [flags] <document-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	vectors, err := vector.NewStore(cfg.Storage.VectorStoreDir)
	if err != nil {
		fmt.Printf("Failed to open vector store: %v\n", err)
		os.Exit(1)
	}
	search, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		fmt.Printf("Failed to open keyword index: %v\n", err)
		os.Exit(1)
	}
	defer search.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := store.GetDocument(ctx, id); err != nil {
		fmt.Printf("Document not found: %s\n", id)
		os.Exit(1)
	}
	if err := vectors.DeleteCollection(id); err != nil {
		fmt.Printf("Failed to delete collection: %v\n", err)
		os.Exit(1)
	}
	_ = search.DeleteDocument(id)
	if err := store.DeleteDocument(ctx, id); err != nil {
		fmt.Printf("Failed to delete document record: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %s\n", id)
}
