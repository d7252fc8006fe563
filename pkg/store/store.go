package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/deckgen/pkg/models"
)

// ErrNotFound is returned when a card set does not exist.
var ErrNotFound = errors.New("card set not found")

// Store persists named card sets in SQLite. Each set is a JSON array of
// chunk outputs capped by entry count and serialized size.
type Store struct {
	db        *sql.DB
	maxChunks int
	maxBytes  int
	truncated atomic.Int64
	loads     atomic.Int64
	misses    atomic.Int64
}

const createCardSetsTable = `
CREATE TABLE IF NOT EXISTS card_sets (
	name TEXT PRIMARY KEY,
	run_id TEXT NOT NULL DEFAULT '',
	payload BLOB NOT NULL,
	chunks INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens (or creates) the store at dbPath. A non-positive cap disables it.
func New(dbPath string, maxChunks, maxBytes int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	if _, err := db.Exec(createCardSetsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &Store{db: db, maxChunks: maxChunks, maxBytes: maxBytes}, nil
}

// TruncateChunks keeps the most recent chunks so that at most maxChunks
// entries remain and their JSON encoding fits in maxBytes. It reports whether
// anything was dropped.
func TruncateChunks(chunks []string, maxChunks, maxBytes int) ([]string, bool) {
	out := chunks
	if maxChunks > 0 && len(out) > maxChunks {
		out = out[len(out)-maxChunks:]
	}
	if maxBytes > 0 {
		// "[]" plus a comma between entries.
		size := 2
		keep := 0
		for i := len(out) - 1; i >= 0; i-- {
			n := encodedLen(out[i])
			if keep > 0 {
				n++
			}
			if size+n > maxBytes {
				break
			}
			size += n
			keep++
		}
		out = out[len(out)-keep:]
	}
	return out, len(out) != len(chunks)
}

func encodedLen(s string) int {
	b, err := json.Marshal(s)
	if err != nil {
		return len(s) + 2
	}
	return len(b)
}

// SaveChunks stores chunks under name, replacing any previous set. Oversized
// sets are truncated to the most recent entries rather than rejected.
func (s *Store) SaveChunks(name, runID string, chunks []string) (models.CardSetInfo, error) {
	kept, dropped := TruncateChunks(chunks, s.maxChunks, s.maxBytes)
	if dropped {
		s.truncated.Add(1)
	}
	if kept == nil {
		kept = []string{}
	}
	payload, err := json.Marshal(kept)
	if err != nil {
		return models.CardSetInfo{}, fmt.Errorf("encode card set: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO card_sets (name, run_id, payload, chunks, bytes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, runID, payload, len(kept), len(payload), now,
	)
	if err != nil {
		return models.CardSetInfo{}, fmt.Errorf("save card set: %w", err)
	}
	return models.CardSetInfo{
		Name:      name,
		RunID:     runID,
		Chunks:    len(kept),
		Bytes:     int64(len(payload)),
		UpdatedAt: now,
	}, nil
}

// LoadChunks returns the stored set called name.
func (s *Store) LoadChunks(name string) (models.CardSet, error) {
	var (
		set     models.CardSet
		payload []byte
	)
	err := s.db.QueryRow(
		`SELECT name, run_id, payload, updated_at FROM card_sets WHERE name = ?`, name,
	).Scan(&set.Name, &set.RunID, &payload, &set.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return models.CardSet{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return models.CardSet{}, fmt.Errorf("load card set: %w", err)
	}
	if err := json.Unmarshal(payload, &set.Chunks); err != nil {
		return models.CardSet{}, fmt.Errorf("decode card set %s: %w", name, err)
	}
	s.loads.Add(1)
	return set, nil
}

// DeleteChunks removes the set called name.
func (s *Store) DeleteChunks(name string) error {
	res, err := s.db.Exec(`DELETE FROM card_sets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete card set: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// ListSets returns every stored set, most recently updated first.
func (s *Store) ListSets() ([]models.CardSetInfo, error) {
	rows, err := s.db.Query(
		`SELECT name, run_id, chunks, bytes, updated_at FROM card_sets ORDER BY updated_at DESC, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list card sets: %w", err)
	}
	defer rows.Close()

	var sets []models.CardSetInfo
	for rows.Next() {
		var info models.CardSetInfo
		if err := rows.Scan(&info.Name, &info.RunID, &info.Chunks, &info.Bytes, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan card set: %w", err)
		}
		sets = append(sets, info)
	}
	return sets, rows.Err()
}

// Stats returns store metrics.
func (s *Store) Stats() (models.StoreStats, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM card_sets`).Scan(&count)
	if err != nil {
		return models.StoreStats{}, fmt.Errorf("store stats: %w", err)
	}
	return models.StoreStats{
		Sets:      count,
		Truncated: s.truncated.Load(),
		Loads:     s.loads.Load(),
		Misses:    s.misses.Load(),
	}, nil
}

// Clear removes card sets. If olderThan is positive, only sets not updated
// within that window are removed.
func (s *Store) Clear(olderThan time.Duration) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if olderThan > 0 {
		res, err = s.db.Exec(`DELETE FROM card_sets WHERE updated_at < ?`, time.Now().UTC().Add(-olderThan))
	} else {
		res, err = s.db.Exec(`DELETE FROM card_sets`)
	}
	if err != nil {
		return 0, fmt.Errorf("store clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
