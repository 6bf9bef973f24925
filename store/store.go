// Package store persists leaf signatures in SQLite and answers
// nearest-neighbor queries over them. Vectors travel as little-endian
// float64 blobs; ranking is a brute-force cosine-distance scan, which
// stays comfortably fast at reference-corpus scale.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"leafscan/features"
	"leafscan/types"

	_ "github.com/mattn/go-sqlite3"
	"gonum.org/v1/gonum/floats"
)

// ErrNotFound reports a lookup for an id the store does not hold.
var ErrNotFound = errors.New("signature not found")

// Store is the SQLite-backed feature store. Reads may run concurrently;
// writes are serialized so a partially written record is never visible.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens the store at dbPath, creating the schema if needed.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open store at %s: %v", dbPath, err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS signatures (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		category TEXT NOT NULL,
		processing_date TEXT NOT NULL,
		vector BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_category ON signatures(category);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot initialize store schema: %v", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores one signature, replacing any existing record with the same
// id inside a single transaction.
func (s *Store) Add(id string, vector []float64, meta types.ImageMetadata) error {
	if len(vector) != features.VectorSize {
		return fmt.Errorf("signature %s has %d values, want %d", id, len(vector), features.VectorSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("cannot begin transaction for %s: %v", id, err)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO signatures (id, path, category, processing_date, vector)
		VALUES (?, ?, ?, ?, ?)`,
		id, meta.Path, meta.Category, meta.ProcessingDate, encodeVector(vector))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("cannot insert signature %s: %v", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit signature %s: %v", id, err)
	}
	return nil
}

// Query scans every stored signature and returns the k nearest by
// cosine distance, nearest first. k <= 0 returns all matches.
func (s *Store) Query(vector []float64, k int) ([]types.QueryMatch, error) {
	rows, err := s.db.Query(`SELECT id, path, category, processing_date, vector FROM signatures`)
	if err != nil {
		return nil, fmt.Errorf("cannot query signatures: %v", err)
	}
	defer rows.Close()

	var matches []types.QueryMatch
	for rows.Next() {
		var (
			id   string
			meta types.ImageMetadata
			blob []byte
		)
		if err := rows.Scan(&id, &meta.Path, &meta.Category, &meta.ProcessingDate, &blob); err != nil {
			return nil, fmt.Errorf("cannot scan signature row: %v", err)
		}
		stored, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("cannot decode signature %s: %v", id, err)
		}
		matches = append(matches, types.QueryMatch{
			ID:       id,
			Distance: cosineDistance(vector, stored),
			Metadata: meta,
			Vector:   stored,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot iterate signatures: %v", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns one stored signature by id, or ErrNotFound.
func (s *Store) Get(id string) (*types.StoredSignature, error) {
	var (
		sig  types.StoredSignature
		blob []byte
	)
	err := s.db.QueryRow(`
		SELECT id, path, category, processing_date, vector FROM signatures WHERE id = ?`, id).
		Scan(&sig.ID, &sig.Metadata.Path, &sig.Metadata.Category, &sig.Metadata.ProcessingDate, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cannot get signature %s: %v", id, err)
	}

	sig.Vector, err = decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("cannot decode signature %s: %v", id, err)
	}
	return &sig, nil
}

// Clear removes every stored signature.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM signatures`); err != nil {
		return fmt.Errorf("cannot clear store: %v", err)
	}
	return nil
}

// Stats summarizes the store: total count, per-category counts and the
// most recent processing date.
func (s *Store) Stats() (*types.StoreStats, error) {
	stats := &types.StoreStats{Categories: make(map[string]int)}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM signatures`).Scan(&stats.TotalImages); err != nil {
		return nil, fmt.Errorf("cannot count signatures: %v", err)
	}

	rows, err := s.db.Query(`SELECT category, COUNT(*) FROM signatures GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("cannot count categories: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("cannot scan category count: %v", err)
		}
		stats.Categories[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot iterate category counts: %v", err)
	}

	var last sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(processing_date) FROM signatures`).Scan(&last); err != nil {
		return nil, fmt.Errorf("cannot get last update: %v", err)
	}
	if last.Valid {
		stats.LastUpdate = last.String
	}
	return stats, nil
}

// List returns up to limit stored records, newest first, without their
// vectors. limit <= 0 returns all of them.
func (s *Store) List(limit int) ([]types.StoredSignature, error) {
	query := `SELECT id, path, category, processing_date FROM signatures ORDER BY processing_date DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.listRecords(query, args...)
}

// ListByCategory returns every record in one category, newest first,
// without vectors.
func (s *Store) ListByCategory(category string) ([]types.StoredSignature, error) {
	return s.listRecords(`
		SELECT id, path, category, processing_date FROM signatures
		WHERE category = ? ORDER BY processing_date DESC`, category)
}

func (s *Store) listRecords(query string, args ...interface{}) ([]types.StoredSignature, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list signatures: %v", err)
	}
	defer rows.Close()

	var records []types.StoredSignature
	for rows.Next() {
		var sig types.StoredSignature
		if err := rows.Scan(&sig.ID, &sig.Metadata.Path, &sig.Metadata.Category, &sig.Metadata.ProcessingDate); err != nil {
			return nil, fmt.Errorf("cannot scan signature row: %v", err)
		}
		records = append(records, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot iterate signatures: %v", err)
	}
	return records, nil
}

type exportFile struct {
	TotalImages int                     `json:"total_images"`
	ExportedAt  string                  `json:"exported_at"`
	Images      []types.StoredSignature `json:"images"`
}

// Export writes the full store contents, vectors included, as indented
// JSON to path.
func (s *Store) Export(path string) error {
	rows, err := s.db.Query(`SELECT id, path, category, processing_date, vector FROM signatures ORDER BY id`)
	if err != nil {
		return fmt.Errorf("cannot read signatures for export: %v", err)
	}
	defer rows.Close()

	dump := exportFile{ExportedAt: time.Now().Format(time.RFC3339)}
	for rows.Next() {
		var (
			sig  types.StoredSignature
			blob []byte
		)
		if err := rows.Scan(&sig.ID, &sig.Metadata.Path, &sig.Metadata.Category, &sig.Metadata.ProcessingDate, &blob); err != nil {
			return fmt.Errorf("cannot scan signature row: %v", err)
		}
		if sig.Vector, err = decodeVector(blob); err != nil {
			return fmt.Errorf("cannot decode signature %s: %v", sig.ID, err)
		}
		dump.Images = append(dump.Images, sig)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("cannot iterate signatures: %v", err)
	}
	dump.TotalImages = len(dump.Images)

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode export: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write export to %s: %v", path, err)
	}
	return nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}

// cosineDistance is 1 - cos(a, b), in [0,2]. Mismatched lengths or a
// zero-norm side count as distance 1.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}
