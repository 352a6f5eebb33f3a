package run

import (
	"slices"
	"time"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerOnDemand  Trigger = "on_demand"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is the record of one pipeline execution.
type Run struct {
	ID          string    `yaml:"id" json:"id"`
	Trigger     Trigger   `yaml:"trigger" json:"trigger"`
	Destination string    `yaml:"destination" json:"destination"`
	Status      Status    `yaml:"status" json:"status"`
	StartedAt   time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt  time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitzero"`
	TaskCount   int       `yaml:"task_count" json:"task_count"`
	Orphans     int       `yaml:"orphans" json:"orphans"`
	ChunkCount  int       `yaml:"chunk_count" json:"chunk_count"`
	Delivered   int       `yaml:"delivered" json:"delivered"`
	Chunks      []string  `yaml:"chunks,omitempty" json:"chunks,omitempty"`
	Error       string    `yaml:"error,omitempty" json:"error,omitempty"`
}

func (r *Run) Finished() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Clone returns a copy that shares no memory with r.
func (r *Run) Clone() *Run {
	cp := *r
	cp.Chunks = slices.Clone(r.Chunks)
	return &cp
}
