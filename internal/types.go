package internal

// Entry is one input row to be assessed: a source text and its translation.
// Row is the spreadsheet row number, stable across repeated runs against the
// same file so that checkpoint resume stays meaningful.
type Entry struct {
	Row    int    `json:"row"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// AssessmentResult is the structured quality verdict for one entry.
// Score 0 is reserved for rows whose model response could not be parsed or
// whose API call failed.
type AssessmentResult struct {
	Score      int      `json:"score"`
	Issues     []string `json:"issues"`
	Suggestion string   `json:"suggestion"`
	Summary    string   `json:"summary"`
}

// ProcessedItem joins an entry with its assessment; Row is the join key.
type ProcessedItem struct {
	Row    int              `json:"row"`
	Source string           `json:"source"`
	Target string           `json:"target"`
	Result AssessmentResult `json:"result"`
}
