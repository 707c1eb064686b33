package deploy

import "time"

// ReleaseStatus tracks a release through its lifecycle.
type ReleaseStatus string

const (
	ReleaseStatusPending   ReleaseStatus = "pending"
	ReleaseStatusMigrating ReleaseStatus = "migrating"
	ReleaseStatusRefreshed ReleaseStatus = "refreshed"
	ReleaseStatusFailed    ReleaseStatus = "failed"
)

// ReleaseRecord is the durable record of one release attempt.
type ReleaseRecord struct {
	ID         string        `json:"id"`
	Status     ReleaseStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BuildRecord is the durable record of one image build.
type BuildRecord struct {
	ID         string        `json:"id"`
	Variant    string        `json:"variant"`
	Tag        string        `json:"tag"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}
