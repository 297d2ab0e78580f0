package mode

// Mode is the gate that decides whether a visited node is kept.
type Mode string

// Gate mode constants.
const (
	// Filter uses the dual-stage filter (judge + keywords).
	Filter Mode = "filter"
	// Model keeps nodes whose relevance score reaches the adaptive threshold.
	Model Mode = "model"
	// Hybrid requires both gates to accept.
	Hybrid Mode = "hybrid"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Filter || m == Model || m == Hybrid
}

// OrDefault returns Filter for the empty mode.
func (m Mode) OrDefault() Mode {
	if m == "" {
		return Filter
	}
	return m
}
