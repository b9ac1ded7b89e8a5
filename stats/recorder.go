// Package stats persists one sample per dispatched event into a local
// SQLite file, batched to keep the hot path off the disk.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/user"
)

// Sample is one recorded event occurrence.
type Sample struct {
	ID         string
	Kind       event.Kind
	Platform   user.Platform
	UserLogin  string
	RecordedAt time.Time
}

const sqlMigration = `BEGIN;
CREATE TABLE IF NOT EXISTS event_samples (
	id TEXT PRIMARY KEY,
	kind INTEGER NOT NULL,
	platform TEXT NOT NULL,
	user_login TEXT NOT NULL collate nocase,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_by_kind_idx ON event_samples (kind);
CREATE INDEX IF NOT EXISTS samples_by_user_idx ON event_samples (user_login);
COMMIT;`

type DB interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

const (
	maxBatchWait  = time.Second * 5
	maxBatchItems = 20

	recordBuffer = 128
)

// BatchedRecorder buffers samples in memory and writes them in batches,
// either when the batch is full or after a maximum wait.
type BatchedRecorder struct {
	logger zerolog.Logger
	db     DB
	roDB   DB

	samples chan Sample
}

func NewBatchedRecorder(logger zerolog.Logger, db DB, roDB DB) *BatchedRecorder {
	return &BatchedRecorder{
		logger:  logger.With().Str("component", "stats").Logger(),
		db:      db,
		roDB:    roDB,
		samples: make(chan Sample, recordBuffer),
	}
}

func (b *BatchedRecorder) PrepareDatabase() error {
	queries := [...]string{
		"pragma journal_mode = WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
	}

	for _, query := range queries {
		if _, err := b.db.Exec(query); err != nil {
			return fmt.Errorf("failed running prepare query: %w", err)
		}
	}

	if _, err := b.db.Exec(sqlMigration); err != nil {
		return fmt.Errorf("failed running migration: %w", err)
	}

	return nil
}

// RecordEvent queues a sample for the dispatched event. Never blocks; a
// full buffer drops the sample.
func (b *BatchedRecorder) RecordEvent(kind event.Kind, params event.CommandParameters) {
	sample := Sample{
		ID:         uuid.NewString(),
		Kind:       kind,
		Platform:   params.Platform,
		RecordedAt: time.Now(),
	}
	if params.User != nil {
		sample.UserLogin = params.User.Login
	}

	select {
	case b.samples <- sample:
	default:
		b.logger.Warn().Stringer("kind", kind).Msg("sample buffer full, dropping sample")
	}
}

// Run writes queued samples until ctx is canceled; the open batch is
// flushed before returning.
func (b *BatchedRecorder) Run(ctx context.Context) error {
	defer b.logger.Info().Msg("batched recorder done")

	var batch []Sample

	timer := time.NewTimer(maxBatchWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) == 0 {
				return ctx.Err()
			}

			b.logger.Info().Int("len-batch", len(batch)).Msg("shutting down, flushing open samples")

			if err := b.insertSamples(batch); err != nil {
				return fmt.Errorf("failed to batch insert %d samples on shutdown: %w", len(batch), err)
			}

			return ctx.Err()
		case sample := <-b.samples:
			batch = append(batch, sample)

			if len(batch) != maxBatchItems {
				continue
			}

			cloned := slices.Clone(batch)
			if err := b.insertSamples(cloned); err != nil {
				return fmt.Errorf("failed to batch insert %d samples after max entries was reached: %w", len(cloned), err)
			}

			batch = batch[:0]

			timer.Stop()
			timer.Reset(maxBatchWait)
		case <-timer.C:
			if len(batch) == 0 {
				timer.Reset(maxBatchWait)
				continue
			}

			cloned := slices.Clone(batch)
			if err := b.insertSamples(cloned); err != nil {
				return fmt.Errorf("failed to batch insert %d samples after max wait time was reached: %w", len(cloned), err)
			}

			batch = batch[:0]
			timer.Reset(maxBatchWait)
		}
	}
}

func (b *BatchedRecorder) insertSamples(samples []Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("expected at least 1 element, got %d", len(samples))
	}

	query := `INSERT INTO event_samples (id, kind, platform, user_login, recorded_at) VALUES %s`

	valueStrings := make([]string, 0, len(samples))
	valueArgs := make([]any, 0, len(samples)*5) // 5 args per row
	for _, sample := range samples {
		valueStrings = append(valueStrings, "(?, ?, ?, ?, ?)")
		valueArgs = append(valueArgs, sample.ID)
		valueArgs = append(valueArgs, int(sample.Kind))
		valueArgs = append(valueArgs, string(sample.Platform))
		valueArgs = append(valueArgs, sample.UserLogin)
		valueArgs = append(valueArgs, sample.RecordedAt)
	}

	query = fmt.Sprintf(query, strings.Join(valueStrings, ","))

	if _, err := b.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("failed inserting data: %w", err)
	}

	return nil
}

// CountByKind returns how often each kind fired.
func (b *BatchedRecorder) CountByKind() (map[event.Kind]int, error) {
	rows, err := b.roDB.Query(`SELECT kind, COUNT(*) FROM event_samples GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[event.Kind]int{}

	for rows.Next() {
		var kind, count int
		if err := rows.Scan(&kind, &count); err != nil {
			return counts, err
		}

		counts[event.Kind(kind)] = count
	}

	if err := rows.Err(); err != nil {
		return counts, err
	}

	return counts, nil
}
