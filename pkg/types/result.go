package types

// FieldScore is the similarity between a query and one stored field vector
type FieldScore struct {
	Field string  `json:"field"`
	Score float64 `json:"score"`
}

// SearchResult represents a single ranked document with its match evidence
type SearchResult struct {
	// Identification
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Scoring
	Score         float64      `json:"score"`
	MatchedFields []FieldScore `json:"matched_fields"`
	TopField      string       `json:"top_field,omitempty"`
	Snippet       string       `json:"snippet"`
	ExactMatch    bool         `json:"exact_match,omitempty"`

	// Raw sub-engine scores and their normalized components, hybrid only
	EngineScores          map[string]float64 `json:"engine_scores,omitempty"`
	EngineScoreComponents map[string]float64 `json:"engine_score_components,omitempty"`

	// Metadata
	Tags             Tags     `json:"tags"`
	Owner            string   `json:"owner,omitempty"`
	Contact          string   `json:"contact,omitempty"`
	Source           string   `json:"source,omitempty"`
	SecurityScore    *float64 `json:"security_score,omitempty"`
	RequiresInternet bool     `json:"requires_internet"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == "" {
		return ErrInvalidDocumentID
	}
	return nil
}
