package processor

import (
	"context"
	"time"

	"github.com/snarg/vidtalk-engine/internal/database"
)

// Status is the lifecycle state of a processing job.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is the externally visible processing state of one video.
type Job struct {
	Status      Status     `json:"status"`
	VideoID     string     `json:"videoId,omitempty"`
	SourceURL   string     `json:"sourceUrl,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	AudioURL    string     `json:"audioUrl,omitempty"`
}

// JobStore persists one job per video id. LoadJob returns nil, nil when
// nothing has been saved for the id.
type JobStore interface {
	LoadJob(ctx context.Context, videoID string) (*database.JobRow, error)
	SaveJob(ctx context.Context, job *database.JobRow) error
}

func jobFromRow(r *database.JobRow) Job {
	if r == nil {
		return Job{Status: StatusIdle}
	}
	return Job{
		Status:      Status(r.Status),
		VideoID:     r.VideoID,
		SourceURL:   r.SourceURL,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		FailedAt:    r.FailedAt,
		Error:       r.Error,
		AudioURL:    r.AudioURL,
	}
}

func (j Job) row() *database.JobRow {
	return &database.JobRow{
		VideoID:     j.VideoID,
		Status:      string(j.Status),
		SourceURL:   j.SourceURL,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		FailedAt:    j.FailedAt,
		Error:       j.Error,
		AudioURL:    j.AudioURL,
	}
}
