package database

import (
	"context"
	"fmt"
	"time"
)

// TranscriptRow is a stored transcript of one processing run.
type TranscriptRow struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}

// SegmentRow is one time-aligned line of a transcript.
type SegmentRow struct {
	ID           string   `json:"id"`
	TranscriptID string   `json:"transcriptId"`
	Text         string   `json:"text"`
	StartTime    float64  `json:"startTime"`
	EndTime      float64  `json:"endTime"`
	Speaker      *string  `json:"speaker,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Order        int      `json:"order"`
}

// TranscriptWithSegments is a transcript and its segments in order.
type TranscriptWithSegments struct {
	TranscriptRow
	Segments []SegmentRow `json:"segments"`
}

// SegmentSearchFilter narrows a full-text search over segment text.
type SegmentSearchFilter struct {
	VideoID string
	Limit   int
	Offset  int
}

// SegmentSearchHit is a matching segment with its video context.
type SegmentSearchHit struct {
	SegmentRow
	VideoID    string  `json:"videoId"`
	VideoTitle string  `json:"videoTitle"`
	Rank       float32 `json:"rank"`
}

// CreateTranscript inserts a transcript row.
func (db *DB) CreateTranscript(ctx context.Context, t *TranscriptRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO transcripts (id, video_id, content, language, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.VideoID, t.Content, t.Language, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// CreateTranscriptSegment inserts one segment row.
func (db *DB) CreateTranscriptSegment(ctx context.Context, s *SegmentRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO transcript_segments (id, transcript_id, text, start_time, end_time, speaker, confidence, "order")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.TranscriptID, s.Text, s.StartTime, s.EndTime, s.Speaker, s.Confidence, s.Order)
	if err != nil {
		return fmt.Errorf("insert transcript segment: %w", err)
	}
	return nil
}

// GetTranscriptWithSegments returns the most recent transcript of a video
// with its segments ordered by "order". Returns ErrNotFound when the video
// has no transcript yet.
func (db *DB) GetTranscriptWithSegments(ctx context.Context, videoID string) (*TranscriptWithSegments, error) {
	var t TranscriptWithSegments
	err := db.Pool.QueryRow(ctx, `
		SELECT id, video_id, content, COALESCE(language, ''), created_at
		FROM transcripts
		WHERE video_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, videoID).Scan(&t.ID, &t.VideoID, &t.Content, &t.Language, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, transcript_id, text, start_time, end_time, speaker, confidence, "order"
		FROM transcript_segments
		WHERE transcript_id = $1
		ORDER BY "order"
	`, t.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t.Segments = []SegmentRow{}
	for rows.Next() {
		var s SegmentRow
		if err := rows.Scan(
			&s.ID, &s.TranscriptID, &s.Text, &s.StartTime, &s.EndTime,
			&s.Speaker, &s.Confidence, &s.Order,
		); err != nil {
			return nil, err
		}
		t.Segments = append(t.Segments, s)
	}
	return &t, rows.Err()
}

// SearchSegments performs full-text search over segment text, best match first.
func (db *DB) SearchSegments(ctx context.Context, query string, filter SegmentSearchFilter) ([]SegmentSearchHit, int, error) {
	qb := newQueryBuilder()
	qb.Add("to_tsvector('english', s.text) @@ plainto_tsquery('english', %s)", query)
	if filter.VideoID != "" {
		qb.Add("t.video_id = %s", filter.VideoID)
	}

	whereClause := qb.WhereClause()
	fromClause := `FROM transcript_segments s
		JOIN transcripts t ON t.id = s.transcript_id
		JOIN videos v ON v.id = t.video_id`

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) "+fromClause+whereClause, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rankParam := qb.Param(query)
	dataQuery := fmt.Sprintf(`
		SELECT s.id, s.transcript_id, s.text, s.start_time, s.end_time, s.speaker, s.confidence, s."order",
			t.video_id, v.title,
			ts_rank(to_tsvector('english', s.text), plainto_tsquery('english', %s)) AS rank
		%s%s
		ORDER BY rank DESC, t.video_id, s."order"
		LIMIT %d OFFSET %d
	`, rankParam, fromClause, whereClause, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := db.Pool.Query(ctx, dataQuery, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	hits := []SegmentSearchHit{}
	for rows.Next() {
		var h SegmentSearchHit
		if err := rows.Scan(
			&h.ID, &h.TranscriptID, &h.Text, &h.StartTime, &h.EndTime,
			&h.Speaker, &h.Confidence, &h.Order,
			&h.VideoID, &h.VideoTitle, &h.Rank,
		); err != nil {
			return nil, 0, err
		}
		hits = append(hits, h)
	}
	return hits, total, rows.Err()
}
