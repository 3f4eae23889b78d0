// Package mock provides an in-memory vectorindex.Index with error injection for tests.
package mock

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/kozaktomas/face-search/internal/vectorindex"
)

// MockIndex is a brute-force vectorindex.Index. Points keep insertion order,
// which acts as the native order for score ties.
type MockIndex struct {
	mu     sync.RWMutex
	order  []string
	points map[string]vectorindex.Point

	// Error injection
	QueryError     error
	RetrieveError  error
	UpsertError    error
	HasSourceError error
	CountError     error

	// Call tracking
	QueryCalls    int
	RetrieveCalls int
	LastLimit     int
	LastVector    []float32
	LastThresh    float64
	UpsertCalls   int
}

// NewMockIndex creates an empty mock index.
func NewMockIndex() *MockIndex {
	return &MockIndex{
		points: make(map[string]vectorindex.Point),
	}
}

// AddPoint stores a point without error injection or call tracking.
func (m *MockIndex) AddPoint(p vectorindex.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(p)
}

func (m *MockIndex) put(p vectorindex.Point) {
	if _, ok := m.points[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	p.Payload = maps.Clone(p.Payload)
	m.points[p.ID] = p
}

// Query implements vectorindex.Reader.
func (m *MockIndex) Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]vectorindex.Point, error) {
	m.mu.Lock()
	m.QueryCalls++
	m.LastLimit = limit
	m.LastVector = vector
	m.LastThresh = threshold
	m.mu.Unlock()

	if m.QueryError != nil {
		return nil, m.QueryError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]vectorindex.Point, 0)
	for _, id := range m.order {
		p := m.points[id]
		score := vectorindex.CosineSimilarity(vector, p.Vector)
		if score < threshold {
			continue
		}
		results = append(results, vectorindex.Point{ID: p.ID, Score: score, Payload: maps.Clone(p.Payload)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Retrieve implements vectorindex.Reader.
func (m *MockIndex) Retrieve(ctx context.Context, id string) (*vectorindex.Point, error) {
	m.mu.Lock()
	m.RetrieveCalls++
	m.mu.Unlock()
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok {
		return nil, nil
	}
	p.Payload = maps.Clone(p.Payload)
	return &p, nil
}

// Count implements vectorindex.Reader.
func (m *MockIndex) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

// Upsert implements vectorindex.Writer.
func (m *MockIndex) Upsert(ctx context.Context, points ...vectorindex.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertError != nil {
		return m.UpsertError
	}
	for _, p := range points {
		m.put(p)
	}
	return nil
}

// HasSource implements vectorindex.Writer.
func (m *MockIndex) HasSource(ctx context.Context, source string) (bool, error) {
	if m.HasSourceError != nil {
		return false, m.HasSourceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.points {
		if p.Source() == source {
			return true, nil
		}
	}
	return false, nil
}

// Close implements vectorindex.Index.
func (m *MockIndex) Close() error {
	return nil
}
