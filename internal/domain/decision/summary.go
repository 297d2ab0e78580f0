package decision

import (
	"time"

	"github.com/google/uuid"
)

// Summary describes one audited traversal.
type Summary struct {
	TraversalID  uuid.UUID `json:"traversal_id"`
	DocumentID   string    `json:"document_id"`
	Query        string    `json:"query"`
	Mode         string    `json:"mode"`
	Visited      int       `json:"visited"`
	Selected     int       `json:"selected"`
	Recovered    int       `json:"recovered"`
	OverFiltered bool      `json:"over_filtered"`
	Threshold    float64   `json:"threshold"`
	CreatedAt    time.Time `json:"created_at"`
}
