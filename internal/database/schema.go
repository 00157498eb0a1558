package database

import "context"

// schemaSQL creates the base tables on a fresh database. Later changes go in
// migrations so existing installs pick them up.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS videos (
    id            text PRIMARY KEY,
    title         text NOT NULL,
    description   text,
    filename      text NOT NULL,
    url           text NOT NULL,
    duration      integer,
    status        text NOT NULL DEFAULT 'processing',
    uploaded_at   timestamptz NOT NULL DEFAULT now(),
    processed_at  timestamptz
);

CREATE TABLE IF NOT EXISTS transcripts (
    id          text PRIMARY KEY,
    video_id    text NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
    content     text NOT NULL,
    language    text DEFAULT 'en',
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcript_segments (
    id             text PRIMARY KEY,
    transcript_id  text NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
    text           text NOT NULL,
    start_time     double precision NOT NULL,
    end_time       double precision NOT NULL,
    speaker        text,
    confidence     double precision,
    "order"        integer NOT NULL
);

-- No FK to videos: DeleteVideo removes the job itself, and a failed run may
-- record its outcome after the video is gone.
CREATE TABLE IF NOT EXISTS processing_jobs (
    video_id      text PRIMARY KEY,
    status        text NOT NULL,
    source_url    text NOT NULL DEFAULT '',
    started_at    timestamptz,
    completed_at  timestamptz,
    failed_at     timestamptz,
    error         text NOT NULL DEFAULT '',
    audio_url     text NOT NULL DEFAULT '',
    updated_at    timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_segments_transcript ON transcript_segments (transcript_id, "order");
`

// InitSchema applies the base schema on a fresh database. The "videos"
// table stands in for the whole schema: if it exists this is a no-op.
func (db *DB) InitSchema(ctx context.Context) error {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'videos')`,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		db.log.Debug().Msg("schema already initialized, skipping")
		return nil
	}

	db.log.Info().Msg("fresh database detected, applying schema")
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	db.log.Info().Msg("schema applied successfully")
	return nil
}
