package domain

// LineResult is one search hit.
type LineResult struct {
	Content    string `json:"content"`
	Path       string `json:"path"`
	LineNumber int    `json:"lineNumber"`
	Branch     string `json:"branch"`
}

// SnippetLine is a single line of a snippet window.
type SnippetLine struct {
	LineNumber int    `json:"lineNumber"`
	Content    string `json:"content"`
}

// Snippet is a bounded window of lines around a requested line together with
// the metadata of the file it belongs to.
type Snippet struct {
	Path        string        `json:"path"`
	Branch      string        `json:"branch"`
	Repository  string        `json:"repository"`
	AuthorEmail string        `json:"authorEmail"`
	Date        string        `json:"date"`
	Lines       []SnippetLine `json:"lines"`
}

// SearchResult is the combined response of an exact search with fuzzy fallback.
type SearchResult struct {
	Exact []LineResult `json:"exact"`
	Fuzzy []LineResult `json:"fuzzy"`
}
