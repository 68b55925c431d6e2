package model

// Evidence is one normalized search result used as prompt context.
// It is never persisted on its own.
type Evidence struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}
