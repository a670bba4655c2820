// Package job models asynchronous identifier-mapping jobs.
package job

import (
	"fmt"
	"slices"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

// Job status values. RUNNING moves exactly once to FINISHED or ERROR.
const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusError    Status = "ERROR"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool { return s == StatusFinished || s == StatusError }

// Request asks to map IDs of type From onto identifiers of type To.
type Request struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	IDs  []string `json:"ids"`
}

// Validate checks the request shape. maxIDs <= 0 disables the size check.
func (r Request) Validate(maxIDs int) error {
	if r.From == "" || r.To == "" {
		return fmt.Errorf("from and to are required")
	}
	if len(r.IDs) == 0 {
		return fmt.Errorf("ids must not be empty")
	}
	if maxIDs > 0 && len(r.IDs) > maxIDs {
		return fmt.Errorf("too many ids: %d (max %d)", len(r.IDs), maxIDs)
	}
	return nil
}

// DistinctIDs returns the non-empty IDs in first-seen order.
func (r Request) DistinctIDs() []string {
	seen := make(map[string]struct{}, len(r.IDs))
	out := make([]string, 0, len(r.IDs))
	for _, id := range r.IDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Pair is one successful mapping.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result partitions the input IDs into mapped pairs and failed IDs. No ID appears in both.
type Result struct {
	Mapped []Pair   `json:"mapped"`
	Failed []string `json:"failed"`
}

// Job is a snapshot of one job record.
// FINISHED jobs carry Result and no ErrorMessage; ERROR jobs the reverse; RUNNING jobs neither.
type Job struct {
	ID           string    `json:"jobId"`
	Status       Status    `json:"jobStatus"`
	Request      Request   `json:"request"`
	Result       *Result   `json:"result,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewRunning creates the initial record for a submitted job.
func NewRunning(id string, req Request, now time.Time) Job {
	return Job{
		ID:        id,
		Status:    StatusRunning,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Finish returns the FINISHED form of j. Callers apply it only to a RUNNING job.
func (j Job) Finish(res Result, now time.Time) Job {
	j.Status = StatusFinished
	j.Result = &res
	j.ErrorMessage = ""
	j.UpdatedAt = now
	return j
}

// Fail returns the ERROR form of j with a display-safe message.
func (j Job) Fail(msg string, now time.Time) Job {
	j.Status = StatusError
	j.Result = nil
	j.ErrorMessage = msg
	j.UpdatedAt = now
	return j
}

// Clone returns a deep copy safe to hand out to readers.
func (j Job) Clone() Job {
	j.Request.IDs = slices.Clone(j.Request.IDs)
	if j.Result != nil {
		r := Result{
			Mapped: slices.Clone(j.Result.Mapped),
			Failed: slices.Clone(j.Result.Failed),
		}
		j.Result = &r
	}
	return j
}
