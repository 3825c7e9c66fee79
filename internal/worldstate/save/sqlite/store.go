// Package sqlite is the bundled SaveStorage implementation: async
// upsert of ChangeForm blobs into a modernc.org/sqlite-backed table,
// with retry and tick-thread completion delivery.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"github.com/riftworld/worldcore/internal/worldstate/form"
)

// completion is one finished upsert's callback, posted from the worker
// goroutine and drained on the tick thread by Tick (§5: "communicates
// back via a completion callback that MUST be delivered to the tick
// thread").
type completion struct {
	onDone func()
}

// Store is the bundled sqlite SaveStorage implementation.
type Store struct {
	db     *sql.DB
	log    *slog.Logger
	done   chan completion
	inFlight bool
}

// Open opens (creating if needed) a sqlite database at path and applies
// embedded migrations.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db, log: log, done: make(chan completion, 1)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Tick drains at most one completed upsert's callback onto the calling
// (tick) thread.
func (s *Store) Tick() {
	select {
	case c := <-s.done:
		s.inFlight = false
		c.onDone()
	default:
	}
}

// Upsert persists batch asynchronously, retrying transient failures with
// exponential backoff, and posts onDone for delivery on the next Tick.
// Exactly one upsert may be in flight at a time (I8); the caller
// (WorldState via the journal's busy flag) is responsible for that, but
// Upsert still refuses to start a second worker defensively.
func (s *Store) Upsert(batch []form.ChangeForm, onDone func()) {
	if s.inFlight {
		s.log.Error("sqlite save storage: Upsert called while one was already in flight")
		return
	}
	s.inFlight = true
	s.log.Info("save storage: starting upsert batch", "count", humanize.Comma(int64(len(batch))))

	go func() {
		_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
			return struct{}{}, s.upsertOnce(batch)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
		if err != nil {
			s.log.Error("save storage: upsert failed after retries", "error", err, "count", humanize.Comma(int64(len(batch))))
		}
		s.done <- completion{onDone: onDone}
	}()
}

func (s *Store) upsertOnce(batch []form.ChangeForm) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().UnixMilli()
	for _, cf := range batch {
		data, err := form.Encode(cf)
		if err != nil {
			return fmt.Errorf("encode change form %s/%d: %w", cf.Desc.FileName, cf.Desc.LocalID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO change_forms (file_name, local_id, rec_type, data, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(file_name, local_id) DO UPDATE SET rec_type=excluded.rec_type, data=excluded.data, updated_at=excluded.updated_at`,
			cf.Desc.FileName, cf.Desc.LocalID, string(cf.RecType), data, now,
		); err != nil {
			return fmt.Errorf("upsert change form %s/%d: %w", cf.Desc.FileName, cf.Desc.LocalID, err)
		}
	}
	return tx.Commit()
}

// LoadAll reads every persisted change form, for replay at startup
// (WorldState.LoadChangeForm).
func (s *Store) LoadAll() ([]form.ChangeForm, error) {
	rows, err := s.db.Query(`SELECT data FROM change_forms`)
	if err != nil {
		return nil, fmt.Errorf("query change forms: %w", err)
	}
	defer rows.Close()

	var out []form.ChangeForm
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan change form: %w", err)
		}
		cf, err := form.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode change form: %w", err)
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}
