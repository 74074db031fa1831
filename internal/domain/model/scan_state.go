package model

import (
	"time"

	"github.com/google/uuid"
)

// ScanState is the progress snapshot of one scan. It is owned by the
// scanner session and handed out by value.
type ScanState struct {
	ScanID       uuid.UUID       `json:"scan_id"`
	Pending      []CollectionRef `json:"pending"`
	Resolved     []CollectionRef `json:"resolved"`
	Failed       []string        `json:"failed,omitempty"`
	BatchIndex   int             `json:"batch_index"`
	TotalBatches int             `json:"total_batches"`
	IsScanning   bool            `json:"is_scanning"`
	StartedAt    time.Time       `json:"started_at"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s ScanState) Clone() ScanState {
	out := s
	out.Pending = append([]CollectionRef(nil), s.Pending...)
	out.Resolved = append([]CollectionRef(nil), s.Resolved...)
	out.Failed = append([]string(nil), s.Failed...)
	return out
}
