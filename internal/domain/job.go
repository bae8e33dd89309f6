package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ParseJobStatus converts user input (CLI flags, query params) into a JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	switch JobStatus(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusInProgress, "in-progress", "inprogress":
		return StatusInProgress, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DownloadJob is one unit of queued download work.
type DownloadJob struct {
	ID           string    `json:"id"`
	Owner        OwnerRef  `json:"owner"`
	SourceURL    string    `json:"source_url"`
	TargetPath   string    `json:"target_path"`
	Status       JobStatus `json:"status"`
	Priority     int       `json:"priority"`
	AttemptCount int       `json:"attempt_count"`
	ClaimedBy    string    `json:"claimed_by,omitempty"`
	LastError    string    `json:"last_error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (j *DownloadJob) Kind() JobKind {
	return j.Owner.Kind()
}

// EnqueueRequest carries everything a producer supplies for a new job.
// TargetPath must already be resolved through the assetpath package.
type EnqueueRequest struct {
	Owner      OwnerRef
	SourceURL  string
	TargetPath string
	Priority   int
}

// Validate checks the request before it reaches the job table.
func (r EnqueueRequest) Validate() error {
	if !r.Owner.Valid() {
		return fmt.Errorf("%w: owner reference is not set", ErrInvalidJob)
	}

	u, err := url.Parse(r.SourceURL)
	if err != nil {
		return fmt.Errorf("%w: source url: %v", ErrInvalidJob, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: source url must be absolute http(s): %q", ErrInvalidJob, r.SourceURL)
	}

	if err := ValidateTargetPath(r.TargetPath); err != nil {
		return err
	}
	return nil
}

// ValidateTargetPath rejects absolute paths and anything escaping the storage root.
func ValidateTargetPath(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("%w: target path is empty", ErrInvalidJob)
	}
	if strings.HasPrefix(target, "/") || strings.Contains(target, "\\") {
		return fmt.Errorf("%w: target path must be relative: %q", ErrInvalidJob, target)
	}
	clean := path.Clean(target)
	if clean != target || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: target path is not a clean relative path: %q", ErrInvalidJob, target)
	}
	return nil
}

// JobFilter narrows ListJobs results. Zero values mean "any".
type JobFilter struct {
	Status JobStatus
	Kind   JobKind
	Limit  int
}

// QueueStats counts jobs per status.
type QueueStats map[JobStatus]int

func (s QueueStats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}
