package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// JobRow is the persisted processing state of one video. There is one row
// per video id; a new run overwrites it.
type JobRow struct {
	VideoID     string
	Status      string
	SourceURL   string
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	Error       string
	AudioURL    string
	UpdatedAt   time.Time
}

// LoadJob returns the job for a video, or nil if none has been saved.
func (db *DB) LoadJob(ctx context.Context, videoID string) (*JobRow, error) {
	var j JobRow
	err := db.Pool.QueryRow(ctx, `
		SELECT video_id, status, source_url, started_at, completed_at, failed_at,
			error, audio_url, updated_at
		FROM processing_jobs WHERE video_id = $1
	`, videoID).Scan(
		&j.VideoID, &j.Status, &j.SourceURL, &j.StartedAt, &j.CompletedAt, &j.FailedAt,
		&j.Error, &j.AudioURL, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return &j, nil
}

// SaveJob upserts the job row, replacing every field.
func (db *DB) SaveJob(ctx context.Context, j *JobRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO processing_jobs (
			video_id, status, source_url, started_at, completed_at, failed_at,
			error, audio_url, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (video_id) DO UPDATE SET
			status = EXCLUDED.status,
			source_url = EXCLUDED.source_url,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			failed_at = EXCLUDED.failed_at,
			error = EXCLUDED.error,
			audio_url = EXCLUDED.audio_url,
			updated_at = now()
	`, j.VideoID, j.Status, j.SourceURL, j.StartedAt, j.CompletedAt, j.FailedAt, j.Error, j.AudioURL)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}
