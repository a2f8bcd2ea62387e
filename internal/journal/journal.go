// Package journal persists tick telemetry in a BoltDB file, one bucket per
// run, so a drive can be inspected after the robot is stopped.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"PicarNav/internal/model"
)

var (
	runsBucket = []byte("runs")
	ticksKey   = []byte("ticks")
)

// ErrRunNotFound is returned when a run has no records.
var ErrRunNotFound = errors.New("run not found")

// Run summarises a journaled run.
type Run struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	Ticks   int       `json:"ticks"`
}

// Store is a bbolt-backed telemetry journal. It is safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("[journal] create %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[journal] open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[journal] init: %w", err)
	}
	return &Store{db: db}, nil
}

// Name implements the telemetry sink interface.
func (s *Store) Name() string { return "journal" }

// Publish appends a tick record under its run.
func (s *Store) Publish(t model.Telemetry) error {
	if t.RunID == "" {
		return errors.New("[journal] record without run id")
	}
	v, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		run, err := tx.Bucket(runsBucket).CreateBucketIfNotExists([]byte(t.RunID))
		if err != nil {
			return err
		}
		if run.Get([]byte("started")) == nil {
			ts, _ := t.Time.MarshalText()
			if err := run.Put([]byte("started"), ts); err != nil {
				return err
			}
		}
		ticks, err := run.CreateBucketIfNotExists(ticksKey)
		if err != nil {
			return err
		}
		return ticks.Put(seqKey(t.Seq), v)
	})
}

// Runs lists journaled runs ordered by start time.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		runsB := tx.Bucket(runsBucket)
		return runsB.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			run := runsB.Bucket(k)
			r := Run{ID: string(k)}
			if ts := run.Get([]byte("started")); ts != nil {
				_ = r.Started.UnmarshalText(ts)
			}
			if ticks := run.Bucket(ticksKey); ticks != nil {
				r.Ticks = ticks.Stats().KeyN
			}
			runs = append(runs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(runs, func(a, b Run) int { return a.Started.Compare(b.Started) })
	return runs, nil
}

// Latest returns the most recent record of a run.
func (s *Store) Latest(runID string) (model.Telemetry, error) {
	var rec model.Telemetry
	err := s.db.View(func(tx *bbolt.Tx) error {
		ticks := ticksBucket(tx, runID)
		if ticks == nil {
			return ErrRunNotFound
		}
		_, v := ticks.Cursor().Last()
		if v == nil {
			return ErrRunNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// Tail returns up to n of the most recent records of a run, oldest first.
// n <= 0 returns all records.
func (s *Store) Tail(runID string, n int) ([]model.Telemetry, error) {
	var recs []model.Telemetry
	err := s.db.View(func(tx *bbolt.Tx) error {
		ticks := ticksBucket(tx, runID)
		if ticks == nil {
			return ErrRunNotFound
		}
		c := ticks.Cursor()
		for k, v := c.Last(); k != nil && (n <= 0 || len(recs) < n); k, v = c.Prev() {
			var rec model.Telemetry
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ticksBucket(tx *bbolt.Tx, runID string) *bbolt.Bucket {
	run := tx.Bucket(runsBucket).Bucket([]byte(runID))
	if run == nil {
		return nil
	}
	return run.Bucket(ticksKey)
}

// seqKey encodes seq big-endian so cursor order is tick order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
