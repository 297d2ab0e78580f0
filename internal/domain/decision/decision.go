package decision

// Decision is the outcome of one filter evaluation. Immutable value.
type Decision struct {
	IsRelevant    bool     `json:"is_relevant"`
	Confidence    float64  `json:"confidence"`
	Reason        string   `json:"reason"`
	LLMScore      *float64 `json:"llm_score,omitempty"`
	KeywordScore  *float64 `json:"keyword_score,omitempty"`
	CombinedScore *float64 `json:"combined_score,omitempty"`
}

// Score returns a pointer to v for the optional score fields.
func Score(v float64) *float64 { return &v }

// Combined returns the combined score, or 0 when it was not computed.
func (d Decision) Combined() float64 {
	if d.CombinedScore == nil {
		return 0
	}
	return *d.CombinedScore
}

// Record is one entry of the decision log.
type Record struct {
	NodeID        string  `json:"node_id"`
	Title         string  `json:"title"`
	Depth         int     `json:"depth"`
	LLMScore      float64 `json:"llm_score"`
	KeywordScore  float64 `json:"keyword_score"`
	CombinedScore float64 `json:"combined_score"`
	Confidence    float64 `json:"confidence"`
	IsRelevant    bool    `json:"is_relevant"`
	Reason        string  `json:"reason"`
}

// NewRecord flattens a decision into a log record.
func NewRecord(nodeID, title string, depth int, d Decision) Record {
	r := Record{
		NodeID:     nodeID,
		Title:      title,
		Depth:      depth,
		Confidence: d.Confidence,
		IsRelevant: d.IsRelevant,
		Reason:     d.Reason,
	}
	if d.LLMScore != nil {
		r.LLMScore = *d.LLMScore
	}
	if d.KeywordScore != nil {
		r.KeywordScore = *d.KeywordScore
	}
	if d.CombinedScore != nil {
		r.CombinedScore = *d.CombinedScore
	}
	return r
}
