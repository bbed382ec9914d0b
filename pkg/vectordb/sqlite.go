package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps collections in a single SQLite database. Similarity
// search scans the (filtered) collection and scores in process; repository
// collections are small enough that this beats shipping vectors to a
// server for collocated deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a vector database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening vector database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids lock errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS points (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			fields     TEXT NOT NULL,
			embedding  BLOB NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dim  INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating vector tables: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dim) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		collection, dim)
	return err
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO points (collection, id, fields, embedding) VALUES (?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET fields = excluded.fields, embedding = excluded.embedding`,
			collection, rec.ID, string(fields), encodeVector(rec.Embedding)); err != nil {
			return fmt.Errorf("upserting record %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, collection string, params SearchParams) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, fields, embedding FROM points WHERE collection = ?", collection)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var id, fieldsJSON string
		var blob []byte
		if err := rows.Scan(&id, &fieldsJSON, &blob); err != nil {
			return nil, err
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("decoding record %s: %w", id, err)
		}

		if !matchesFilters(fields, params.Filters) {
			continue
		}

		embedding := decodeVector(blob)
		score := CosineSimilarity(params.Vector, embedding)
		if score < params.ScoreThreshold {
			continue
		}

		hit := SearchHit{Record: Record{ID: id, Fields: fields}, Score: score}
		if params.WithVectors {
			hit.Embedding = embedding
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if params.Offset > 0 {
		if params.Offset >= len(hits) {
			return nil, nil
		}
		hits = hits[params.Offset:]
	}
	if params.Limit > 0 && len(hits) > params.Limit {
		hits = hits[:params.Limit]
	}

	slog.Debug("vector search", "collection", collection, "hits", len(hits))
	return hits, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func matchesFilters(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok {
			return false
		}
		str, ok := v.(string)
		if !ok || str != f.Value {
			return false
		}
	}
	return true
}

func encodeVector(v []float32) []byte {
	out := make([]byte, 0, len(v)*4)
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

func decodeVector(raw []byte) []float32 {
	out := make([]float32, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:i+4])))
	}
	return out
}
