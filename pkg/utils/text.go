package utils

// Excerpt returns s truncated to maxLen bytes with "..." appended when truncated.
// Used to build bounded source excerpts for answers. If maxLen is 0 or negative,
// returns s unchanged.
func Excerpt(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
