package event

import "time"

// CollectionsChanged signals that the owner's collection set, or the
// listings of one of its collections, changed upstream.
type CollectionsChanged struct {
	Owner      string    `json:"owner,omitempty"`
	Collection string    `json:"collection,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}
