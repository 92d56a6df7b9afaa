// Copyright 2025 Certen Protocol

package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/certen/attestia/pkg/database"
)

// PGStore is a Store backed by Postgres via pkg/database.Client. It trades
// the in-memory/file variants' process-local durability for a shared,
// queryable backend suited to a multi-instance deployment.
type PGStore struct {
	client *database.Client
}

// NewPGStore constructs a Store over an already-connected database.Client.
// Call client.MigrateUp first so the snapshots table exists.
func NewPGStore(client *database.Client) *PGStore {
	return &PGStore{client: client}
}

func (s *PGStore) Save(rec Record) error {
	if rec.StreamID == "" {
		return newErr(ErrInvalidInput, "streamId is required")
	}
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("snapshot: encode state: %w", err)
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}
	_, err = s.client.ExecContext(context.Background(), `
		INSERT INTO snapshots (stream_id, version, state, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stream_id, version) DO UPDATE
		SET state = EXCLUDED.state, saved_at = EXCLUDED.saved_at
	`, rec.StreamID, rec.Version, stateJSON, rec.SavedAt)
	if err != nil {
		return fmt.Errorf("snapshot: save %s@%d: %w", rec.StreamID, rec.Version, err)
	}
	return nil
}

func (s *PGStore) Load(streamID string) (Record, bool, error) {
	row := s.client.QueryRowContext(context.Background(), `
		SELECT version, state, saved_at FROM snapshots
		WHERE stream_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, streamID)
	return scanRecord(streamID, row)
}

func (s *PGStore) LoadAtVersion(streamID string, version int64) (Record, bool, error) {
	row := s.client.QueryRowContext(context.Background(), `
		SELECT version, state, saved_at FROM snapshots
		WHERE stream_id = $1 AND version = $2
	`, streamID, version)
	return scanRecord(streamID, row)
}

func scanRecord(streamID string, row *sql.Row) (Record, bool, error) {
	var (
		version  int64
		stateRaw []byte
		savedAt  time.Time
	)
	if err := row.Scan(&version, &stateRaw, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("snapshot: scan %s: %w", streamID, err)
	}
	rec := Record{StreamID: streamID, Version: version, SavedAt: savedAt}
	if err := json.Unmarshal(stateRaw, &rec.State); err != nil {
		return Record{}, false, fmt.Errorf("snapshot: decode state for %s: %w", streamID, err)
	}
	return rec, true, nil
}

func (s *PGStore) DeleteAll(streamID string) error {
	_, err := s.client.ExecContext(context.Background(), `DELETE FROM snapshots WHERE stream_id = $1`, streamID)
	if err != nil {
		return fmt.Errorf("snapshot: deleteAll %s: %w", streamID, err)
	}
	return nil
}

func (s *PGStore) HasSnapshot(streamID string) (bool, error) {
	var exists bool
	err := s.client.QueryRowContext(context.Background(), `
		SELECT EXISTS(SELECT 1 FROM snapshots WHERE stream_id = $1)
	`, streamID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("snapshot: hasSnapshot %s: %w", streamID, err)
	}
	return exists, nil
}
