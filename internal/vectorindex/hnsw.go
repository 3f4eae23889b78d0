package vectorindex

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-search/internal/constants"
)

// HNSW graph parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size. It covers a full
	// MaxFetch query plus the self hit of a by-id search.
	HNSWEfSearch = constants.MaxFetch + 1
)

// HNSWMetadata is written next to a saved graph for validation at load time.
type HNSWMetadata struct {
	PointCount int       `json:"point_count"`
	Dim        int       `json:"dim"`
	BuildTime  time.Time `json:"build_time"`
	Version    int       `json:"version"`
}

const hnswMetadataVersion = 1

// storedPoint is the on-disk form of a point; vectors live in the graph file.
type storedPoint struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// HNSWIndex is an in-memory Index backed by an HNSW graph with cosine distance.
type HNSWIndex struct {
	graph   *hnsw.Graph[string]
	payload map[string]map[string]any
	sources map[string]int
	dim     int
	path    string // Path to save/load index, empty for memory only
	mu      sync.RWMutex
}

// NewHNSWIndex creates a new empty index. Vectors must have length dim
// unless dim <= 0.
func NewHNSWIndex(dim int) *HNSWIndex {
	return &HNSWIndex{
		graph:   newGraph(),
		payload: make(map[string]map[string]any),
		sources: make(map[string]int),
		dim:     dim,
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Query implements Reader.
func (h *HNSWIndex) Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := CheckDim(vector, h.dim); err != nil {
		return nil, err
	}
	if limit <= 0 || h.graph.Len() == 0 {
		return []Point{}, nil
	}

	neighbors := h.graph.Search(vector, limit)

	points := make([]Point, 0, len(neighbors))
	for _, n := range neighbors {
		payload, ok := h.payload[n.Key]
		if !ok {
			continue
		}
		score := CosineSimilarity(vector, n.Value)
		if score < threshold {
			continue
		}
		points = append(points, Point{
			ID:      n.Key,
			Score:   score,
			Payload: maps.Clone(payload),
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Score > points[j].Score
	})
	return points, nil
}

// Retrieve implements Reader.
func (h *HNSWIndex) Retrieve(_ context.Context, id string) (*Point, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	payload, ok := h.payload[id]
	if !ok {
		return nil, nil
	}
	vec, ok := h.graph.Lookup(id)
	if !ok {
		return nil, nil
	}
	return &Point{
		ID:      id,
		Vector:  append([]float32(nil), vec...),
		Payload: maps.Clone(payload),
	}, nil
}

// Count implements Reader.
func (h *HNSWIndex) Count(_ context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.payload), nil
}

// Upsert implements Writer.
func (h *HNSWIndex) Upsert(_ context.Context, points ...Point) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dim <= 0 && len(points) > 0 {
		// The first vector fixes the dimension of an unconfigured index.
		h.dim = len(points[0].Vector)
	}
	for i := range points {
		if points[i].ID == "" {
			return fmt.Errorf("point %d: empty id", i)
		}
		if err := CheckDim(points[i].Vector, h.dim); err != nil {
			return fmt.Errorf("point %s: %w", points[i].ID, err)
		}
	}

	for _, p := range points {
		if old, ok := h.payload[p.ID]; ok {
			h.graph.Delete(p.ID)
			h.forgetSource(old)
		}
		h.graph.Add(hnsw.MakeNode(p.ID, append([]float32(nil), p.Vector...)))

		payload := maps.Clone(p.Payload)
		if payload == nil {
			payload = make(map[string]any)
		}
		h.payload[p.ID] = payload
		if s, _ := payload[SourceKey].(string); s != "" {
			h.sources[s]++
		}
	}
	return nil
}

func (h *HNSWIndex) forgetSource(payload map[string]any) {
	s, _ := payload[SourceKey].(string)
	if s == "" {
		return
	}
	if h.sources[s] <= 1 {
		delete(h.sources, s)
		return
	}
	h.sources[s]--
}

// HasSource implements Writer.
func (h *HNSWIndex) HasSource(_ context.Context, source string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sources[source] > 0, nil
}

// Close saves the index when a path is set.
func (h *HNSWIndex) Close() error {
	return h.Save()
}

// Save persists the graph to path, the payloads to path.points and the
// metadata to path.meta. It is a no-op without a path.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil // No path set
	}

	if len(h.payload) == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".points")
		_ = os.Remove(h.path + ".meta")
		return nil
	}

	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	stored := make([]storedPoint, 0, len(h.payload))
	for id, payload := range h.payload {
		stored = append(stored, storedPoint{ID: id, Payload: payload})
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })

	pointsData, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal points: %w", err)
	}
	if err := os.WriteFile(h.path+".points", pointsData, 0600); err != nil {
		return fmt.Errorf("failed to write points file: %w", err)
	}

	metaData, err := json.Marshal(HNSWMetadata{
		PointCount: len(stored),
		Dim:        h.dim,
		BuildTime:  time.Now(),
		Version:    hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(h.path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from the .meta file next to path.
func LoadHNSWMetadata(path string) (HNSWMetadata, error) {
	var metadata HNSWMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// OpenHNSWIndex loads a saved index from path, or returns an empty index
// bound to path when nothing was saved yet.
func OpenHNSWIndex(path string, dim int) (*HNSWIndex, error) {
	h := NewHNSWIndex(dim)
	h.path = path

	if path == "" {
		return h, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return h, nil // No index file yet
	}

	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return nil, err
	}
	if metadata.Version != hnswMetadataVersion {
		return nil, fmt.Errorf("unsupported HNSW index version %d", metadata.Version)
	}
	if dim > 0 && metadata.Dim > 0 && metadata.Dim != dim {
		return nil, fmt.Errorf("%w: index has %d, configured %d", ErrDimensionMismatch, metadata.Dim, dim)
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	if err := h.graph.Import(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("failed to load HNSW index: %w", err)
	}
	// Import restores the saved parameters; search width is ours to decide.
	h.graph.EfSearch = HNSWEfSearch

	data, err := os.ReadFile(path + ".points") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read points file: %w", err)
	}
	var stored []storedPoint
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode points: %w", err)
	}

	for _, p := range stored {
		if _, ok := h.graph.Lookup(p.ID); !ok {
			continue
		}
		payload := p.Payload
		if payload == nil {
			payload = make(map[string]any)
		}
		h.payload[p.ID] = payload
		if s, _ := payload[SourceKey].(string); s != "" {
			h.sources[s]++
		}
	}

	return h, nil
}
