package memstore

import "time"

type WriteStatus string

const (
	StatusWritten WriteStatus = "written"
	StatusSkipped WriteStatus = "skipped"
	StatusFailed  WriteStatus = "failed"
)

// Skip reasons recorded on StatusSkipped results.
const (
	SkipReasonEmpty       = "empty_content"
	SkipReasonTooShort    = "content_too_short"
	SkipReasonCircuitOpen = "circuit_open"
)

type WriteResult struct {
	Status WriteStatus
	Reason string
}

// Fragment is a single retrieved memory, most relevant first.
type Fragment struct {
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type writeRequest struct {
	ID       string            `json:"id"`
	Role     string            `json:"role"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type queryResponse struct {
	Fragments []Fragment `json:"fragments"`
}
