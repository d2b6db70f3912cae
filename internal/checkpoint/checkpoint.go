// Package checkpoint persists model parameters and projection multipliers
// after every EM iteration so an interrupted run can resume.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a run has no checkpoint.
var ErrNotFound = errors.New("checkpoint: not found")

// Config configures the store.
type Config struct {
	// Path is the database directory. Required unless InMemory.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's own log output. Nil silences it.
	Logger *slog.Logger
}

// DefaultConfig returns settings for an on-disk store.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// InMemoryConfig returns settings for a throwaway store.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Checkpoint is the state saved after one EM iteration.
type Checkpoint struct {
	Iteration     int       `json:"iteration"`
	Model         []byte    `json:"model"`
	Lambda        []float64 `json:"lambda,omitempty"`
	LogLikelihood float64   `json:"log_likelihood"`
	SavedAt       time.Time `json:"saved_at"`
}

// Store is a badger-backed checkpoint store.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("checkpoint: path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

func runPrefix(runID string) []byte { return []byte("run/" + runID + "/") }

// Iterations are zero-padded so that key order is iteration order.
func key(runID string, iteration int) []byte {
	return []byte(fmt.Sprintf("run/%s/%09d", runID, iteration))
}

// Save stores cp under runID.
func (s *Store) Save(runID string, cp Checkpoint) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("checkpoint: invalid run id %q: %w", runID, err)
	}
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(runID, cp.Iteration), data)
	})
}

// Load returns the checkpoint of runID at iteration.
func (s *Store) Load(runID string, iteration int) (Checkpoint, error) {
	var cp Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(runID, iteration))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	return cp, err
}

// Latest returns the checkpoint with the highest iteration of runID.
func (s *Store) Latest(runID string) (Checkpoint, error) {
	var cp Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := runPrefix(runID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the largest key <= seek.
		seek := append(append([]byte{}, prefix...), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return ErrNotFound
		}
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	return cp, err
}

// Iterations lists the saved iterations of runID in increasing order.
func (s *Store) Iterations(runID string) ([]int, error) {
	var out []int
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := runPrefix(runID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().Key())
			n, err := strconv.Atoi(strings.TrimPrefix(k, string(prefix)))
			if err != nil {
				return fmt.Errorf("checkpoint: malformed key %q", k)
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// Runs lists every run id with at least one checkpoint.
func (s *Store) Runs() ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte("run/")
		last := ""
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), "run/")
			id, _, _ := strings.Cut(rest, "/")
			if id != last {
				out = append(out, id)
				last = id
			}
		}
		return nil
	})
	return out, err
}
