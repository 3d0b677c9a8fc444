// Package models defines the domain types for sidestamp.
package models

import "encoding/json"

// SidecarRecord is the subset of an exported photo sidecar that sidestamp
// reads. Unknown fields are ignored.
type SidecarRecord struct {
	Title          string          `json:"title,omitempty"`
	PhotoTakenTime json.RawMessage `json:"photoTakenTime,omitempty"`
	CreationTime   json.RawMessage `json:"creationTime,omitempty"`
}

// Status is the terminal state of one sidecar.
type Status string

// Outcome statuses.
const (
	StatusUpdated            Status = "updated"
	StatusSkippedNoMatch     Status = "skipped_no_match"
	StatusSkippedNoTimestamp Status = "skipped_no_timestamp"
	StatusError              Status = "error"
)

// Skipped reports whether s is one of the skip statuses.
func (s Status) Skipped() bool {
	return s == StatusSkippedNoMatch || s == StatusSkippedNoTimestamp
}

// Outcome is the per-sidecar result reported to the shell. It is never
// persisted.
type Outcome struct {
	Sidecar  string `json:"sidecar"`
	Image    string `json:"image,omitempty"`
	Status   Status `json:"status"`
	DateTime string `json:"date_time,omitempty"`
	Reason   string `json:"reason,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// Summary counts outcomes of a run.
type Summary struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// Add records o in the summary.
func (s *Summary) Add(o Outcome) {
	s.Total++
	switch {
	case o.Status == StatusUpdated:
		s.Updated++
	case o.Status.Skipped():
		s.Skipped++
	default:
		s.Errored++
	}
}
