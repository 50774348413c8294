// Package counterstore implements the merge-then-flush activity counters
// described in spec §4.9: an in-memory buffer keyed by an ordered label
// tuple, periodically flushed to Postgres in capped batches, with
// flush failures merged back into the live buffer so no counts are lost.
// Grounded on original_source's core::firestore::counters::store::CounterStore,
// adapted from Firestore's per-document increment transform to Postgres's
// upsert-with-increment, per the teacher's internal/storage package style.
package counterstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const maxBatchWrites = 100

type entry struct {
	values []string
	count  int64
}

// Store merges Incr calls keyed by an ordered label tuple and periodically
// flushes the accumulated counts to a single Postgres table. field_names
// fixes both the column order and the order callers must supply in Incr's
// labels map.
type Store struct {
	db         *sql.DB
	table      string
	fieldNames []string

	mu      sync.Mutex
	entries map[string]*entry

	flushInterval time.Duration
	stop          chan struct{}
	stopped       chan struct{}
}

// New creates a store that flushes to table on flushInterval, and starts
// its background flush loop. Callers must call Shutdown to stop the loop
// and flush whatever remains.
func New(db *sql.DB, table string, fieldNames []string, flushInterval time.Duration) *Store {
	s := &Store{
		db:            db,
		table:         table,
		fieldNames:    fieldNames,
		entries:       make(map[string]*entry),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Flush(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Incr implements auction.CounterSink (and any other label+delta counter
// consumer): labels must carry a value for every name in fieldNames.
func (s *Store) Incr(labels map[string]string, delta int64) {
	key, values, err := s.keyFor(labels)
	if err != nil {
		log.Error().Err(err).Str("table", s.table).Msg("counterstore: dropped increment")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{values: values}
		s.entries[key] = e
	}
	e.count += delta
}

func (s *Store) keyFor(labels map[string]string) (string, []string, error) {
	values := make([]string, len(s.fieldNames))
	for i, name := range s.fieldNames {
		v, ok := labels[name]
		if !ok {
			return "", nil, fmt.Errorf("counterstore: missing label %q", name)
		}
		values[i] = v
	}
	return strings.Join(values, "\x1f"), values, nil
}

func (s *Store) mergeBack(key string, values []string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{values: values}
		s.entries[key] = e
	}
	e.count += count
}

// Flush writes every accumulated entry to Postgres, at most maxBatchWrites
// rows per statement, committing each batch before starting the next so a
// later failure only loses (and merges back) the batch in flight.
func (s *Store) Flush(ctx context.Context) {
	taken := s.takeSnapshot()
	if len(taken) == 0 {
		return
	}

	for i := 0; i < len(taken); i += maxBatchWrites {
		end := i + maxBatchWrites
		if end > len(taken) {
			end = len(taken)
		}
		s.flushBatch(ctx, taken[i:end])
	}
}

type snapshotRow struct {
	key    string
	values []string
	count  int64
}

func (s *Store) takeSnapshot() []snapshotRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]snapshotRow, 0, len(s.entries))
	for key, e := range s.entries {
		if e.count == 0 {
			continue
		}
		rows = append(rows, snapshotRow{key: key, values: e.values, count: e.count})
	}
	s.entries = make(map[string]*entry)
	return rows
}

func (s *Store) flushBatch(ctx context.Context, rows []snapshotRow) {
	query := s.upsertQuery()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Str("table", s.table).Msg("counterstore: begin tx failed, merging back")
		s.mergeBackAll(rows)
		return
	}

	for _, row := range rows {
		args := make([]any, 0, len(row.values)+1)
		for _, v := range row.values {
			args = append(args, v)
		}
		args = append(args, row.count)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.Error().Err(err).Str("table", s.table).Msg("counterstore: upsert failed, merging batch back")
			_ = tx.Rollback()
			s.mergeBackAll(rows)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("table", s.table).Msg("counterstore: commit failed, merging back")
		s.mergeBackAll(rows)
	}
}

func (s *Store) mergeBackAll(rows []snapshotRow) {
	for _, row := range rows {
		s.mergeBack(row.key, row.values, row.count)
	}
}

// upsertQuery builds `INSERT ... VALUES ($1, ..., $n) ON CONFLICT (cols)
// DO UPDATE SET count = table.count + excluded.count`, one row at a time
// since arg count varies only with len(fieldNames), fixed at construction.
func (s *Store) upsertQuery() string {
	cols := append(append([]string{}, s.fieldNames...), "count")
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET count = %s.count + excluded.count",
		s.table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(s.fieldNames, ", "),
		s.table,
	)
}

// Shutdown stops the background flush loop and synchronously flushes
// whatever counts remain, per spec §4.9's shutdown ordering.
func (s *Store) Shutdown(ctx context.Context) {
	close(s.stop)
	<-s.stopped
	s.Flush(ctx)
}
