package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-search/internal/vectorindex"
)

// hnswEfSearch widens the pgvector HNSW candidate list to cover a full fetch.
const hnswEfSearch = vectorindex.HNSWEfSearch

// FaceIndex implements vectorindex.Index on the faces table.
type FaceIndex struct {
	pool *Pool
	dim  int
}

var _ vectorindex.Index = (*FaceIndex)(nil)

// NewFaceIndex creates a face index on an already migrated pool.
func NewFaceIndex(pool *Pool, dim int) *FaceIndex {
	return &FaceIndex{pool: pool, dim: dim}
}

// Query implements vectorindex.Reader. Score is 1 - cosine distance.
func (f *FaceIndex) Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]vectorindex.Point, error) {
	if err := vectorindex.CheckDim(vector, f.dim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []vectorindex.Point{}, nil
	}

	// Use transaction to set ef_search for better recall.
	tx, err := f.pool.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", hnswEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT id, payload, 1 - (embedding <=> $1::vector) AS score
		FROM faces
		WHERE 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector, id
		LIMIT $3
	`

	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(vector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	points := make([]vectorindex.Point, 0, limit)
	for rows.Next() {
		var p vectorindex.Point
		var payload []byte
		if err := rows.Scan(&p.ID, &payload, &p.Score); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		if p.Payload, err = decodePayload(payload); err != nil {
			return nil, fmt.Errorf("face %s: %w", p.ID, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}

	return points, nil
}

// Retrieve implements vectorindex.Reader.
func (f *FaceIndex) Retrieve(ctx context.Context, id string) (*vectorindex.Point, error) {
	var vec pgvector.Vector
	var payload []byte

	err := f.pool.db.QueryRowContext(ctx,
		"SELECT embedding, payload FROM faces WHERE id = $1", id,
	).Scan(&vec, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get face %s: %w", id, err)
	}

	p := &vectorindex.Point{ID: id, Vector: vec.Slice()}
	if p.Payload, err = decodePayload(payload); err != nil {
		return nil, fmt.Errorf("face %s: %w", id, err)
	}
	return p, nil
}

// Count implements vectorindex.Reader.
func (f *FaceIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := f.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&n); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return n, nil
}

// Upsert implements vectorindex.Writer. All points are written in one transaction.
func (f *FaceIndex) Upsert(ctx context.Context, points ...vectorindex.Point) error {
	for i := range points {
		if points[i].ID == "" {
			return fmt.Errorf("point %d: empty id", i)
		}
		if err := vectorindex.CheckDim(points[i].Vector, f.dim); err != nil {
			return fmt.Errorf("point %s: %w", points[i].ID, err)
		}
	}

	tx, err := f.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload of %s: %w", p.ID, err)
		}

		var source sql.NullString
		if s := p.Source(); s != "" {
			source = sql.NullString{String: s, Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO faces (id, embedding, payload, source)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				payload = EXCLUDED.payload,
				source = EXCLUDED.source
		`, p.ID, pgvector.NewVector(p.Vector), data, source)
		if err != nil {
			return fmt.Errorf("upsert face %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit faces: %w", err)
	}
	return nil
}

// HasSource implements vectorindex.Writer.
func (f *FaceIndex) HasSource(ctx context.Context, source string) (bool, error) {
	var exists bool
	err := f.pool.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM faces WHERE source = $1)", source,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check source: %w", err)
	}
	return exists, nil
}

// Close closes the underlying pool.
func (f *FaceIndex) Close() error {
	return f.pool.Close()
}

func decodePayload(data []byte) (map[string]any, error) {
	payload := make(map[string]any)
	if len(data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
