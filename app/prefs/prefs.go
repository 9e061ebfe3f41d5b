// Package prefs persists per-column display widths in a small bbolt
// key-value file keyed by column identifier. Only the presentation layer
// consults it, the core never depends on these values.
package prefs

import (
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketColumns = "columns" // key: column id -> width string

	// MinWidth is the lower clamp for any column width
	MinWidth = 50.0
	// DefaultWidth is used for columns without a stored or default value
	DefaultWidth = 100.0
)

// defaultWidths mirrors the initial table layout
var defaultWidths = map[string]float64{
	"title":    150,
	"company":  150,
	"date":     100,
	"status":   120,
	"location": 120,
	"link":     100,
	"notes":    200,
}

// Store keeps column widths across restarts
type Store struct {
	db *bbolt.DB
}

// NewStore opens (or creates) the prefs file
func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open prefs store: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists([]byte(bucketColumns))
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create prefs bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Width returns the stored width for a column, falling back to the layout
// default. Unreadable stored values degrade to the default as well.
func (s *Store) Width(column string) float64 {
	res := defaultWidths[column]
	if res == 0 {
		res = DefaultWidth
	}

	_ = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketColumns)).Get([]byte(column))
		if v == nil {
			return nil
		}
		if w, err := strconv.ParseFloat(string(v), 64); err == nil {
			res = w
		}
		return nil
	})
	return res
}

// SetWidth stores a column width, clamped to the minimum
func (s *Store) SetWidth(column string, width float64) error {
	if width < MinWidth {
		width = MinWidth
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketColumns)).Put([]byte(column), []byte(strconv.FormatFloat(width, 'f', -1, 64)))
	})
	if err != nil {
		return fmt.Errorf("failed to save width for column %q: %w", column, err)
	}
	return nil
}

// Widths returns the effective width for every known column, stored values
// overriding layout defaults.
func (s *Store) Widths() map[string]float64 {
	res := make(map[string]float64, len(defaultWidths))
	for col := range defaultWidths {
		res[col] = s.Width(col)
	}
	return res
}

// Close closes the underlying store
func (s *Store) Close() error {
	return s.db.Close()
}
