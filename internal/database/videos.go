package database

import (
	"context"
	"fmt"
	"time"
)

// Video statuses.
const (
	VideoProcessing = "processing"
	VideoCompleted  = "completed"
	VideoFailed     = "failed"
)

// Video is an uploaded video and its processing state.
type Video struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Filename    string     `json:"filename"`
	URL         string     `json:"url"`
	Duration    *int       `json:"duration,omitempty"`
	Status      string     `json:"status"`
	UploadedAt  time.Time  `json:"uploadedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// VideoFilter specifies filters for listing videos.
type VideoFilter struct {
	Status string
	Limit  int
	Offset int
}

// CreateVideo inserts a video. ID and UploadedAt must be set by the caller.
func (db *DB) CreateVideo(ctx context.Context, v *Video) error {
	if v.Status == "" {
		v.Status = VideoProcessing
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO videos (id, title, description, filename, url, duration, status, uploaded_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, v.ID, v.Title, v.Description, v.Filename, v.URL, v.Duration, v.Status, v.UploadedAt, v.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// GetVideo returns a video by ID, or ErrNotFound.
func (db *DB) GetVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	err := db.Pool.QueryRow(ctx, `
		SELECT id, title, description, filename, url, duration, status, uploaded_at, processed_at
		FROM videos WHERE id = $1
	`, id).Scan(
		&v.ID, &v.Title, &v.Description, &v.Filename, &v.URL,
		&v.Duration, &v.Status, &v.UploadedAt, &v.ProcessedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// ListVideos returns videos newest first, plus the total matching count.
func (db *DB) ListVideos(ctx context.Context, filter VideoFilter) ([]Video, int, error) {
	qb := newQueryBuilder()
	if filter.Status != "" {
		qb.Add("status = %s", filter.Status)
	}
	where := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM videos"+where, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, title, description, filename, url, duration, status, uploaded_at, processed_at
		FROM videos%s
		ORDER BY uploaded_at DESC
		LIMIT %d OFFSET %d
	`, where, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := db.Pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	videos := []Video{}
	for rows.Next() {
		var v Video
		if err := rows.Scan(
			&v.ID, &v.Title, &v.Description, &v.Filename, &v.URL,
			&v.Duration, &v.Status, &v.UploadedAt, &v.ProcessedAt,
		); err != nil {
			return nil, 0, err
		}
		videos = append(videos, v)
	}
	return videos, total, rows.Err()
}

// UpdateVideoStatus sets a video's status. processedAt is only written when
// non-nil. Returns ErrNotFound if the video does not exist.
func (db *DB) UpdateVideoStatus(ctx context.Context, id, status string, processedAt *time.Time) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE videos SET status = $2, processed_at = COALESCE($3, processed_at)
		WHERE id = $1
	`, id, status, processedAt)
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVideo removes a video with its transcripts, segments, and processing
// job in one transaction.
func (db *DB) DeleteVideo(ctx context.Context, id string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM processing_jobs WHERE video_id = $1`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	// transcripts and transcript_segments go with the video via ON DELETE CASCADE
	tag, err := tx.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
