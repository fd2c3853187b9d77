// Package clustergraph maintains the global graph of accepted match edges
// and the connected-components partition derived from it. Union-find keeps
// merges cheap and makes edge cycles a non-event; only edge invalidation
// recomputes components, and only for the affected cluster.
package clustergraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/match"
)

var (
	ErrUnknownRecord = errors.New("record not tracked by cluster graph")
	ErrEdgeNotFound  = errors.New("edge not found")
)

type pairKey struct {
	a int64
	b int64
}

func keyFor(a, b int64) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Info is a snapshot of one cluster.
type Info struct {
	ID         int64
	Kind       entity.Kind
	Members    []int64
	Confidence float64
}

// Engine is the single system-wide shared mutable structure; all access is
// serialized behind one mutex (the global write point of the design). It is
// an injected dependency, not a singleton.
type Engine struct {
	mu sync.Mutex

	parent  map[int64]int64
	size    map[int64]int
	minID   map[int64]int64
	members map[int64][]int64
	kinds   map[int64]entity.Kind
	edges   map[pairKey]match.Edge

	mergeReposts bool
}

func NewEngine(mergeReposts bool) *Engine {
	return &Engine{
		parent:       make(map[int64]int64),
		size:         make(map[int64]int),
		minID:        make(map[int64]int64),
		members:      make(map[int64][]int64),
		kinds:        make(map[int64]entity.Kind),
		edges:        make(map[pairKey]match.Edge),
		mergeReposts: mergeReposts,
	}
}

// Track registers a record as a singleton cluster. Tracking an already
// tracked record is a no-op; its existing membership is preserved.
func (e *Engine) Track(id int64, kind entity.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("cannot track record %d with kind %q", id, kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.parent[id]; ok {
		return nil
	}
	e.parent[id] = id
	e.size[id] = 1
	e.minID[id] = id
	e.members[id] = []int64{id}
	e.kinds[id] = kind
	return nil
}

// ApplyEdges applies one record's edge batch atomically. Duplicate pairs are
// no-ops, so reprocessing a record never double-counts. Edge order within the
// batch does not affect the resulting partition.
func (e *Engine) ApplyEdges(edges []match.Edge) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, edge := range edges {
		if _, ok := e.parent[edge.A]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownRecord, edge.A)
		}
		if _, ok := e.parent[edge.B]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownRecord, edge.B)
		}
		if e.kinds[edge.A] != e.kinds[edge.B] {
			return fmt.Errorf("edge %d-%d joins records of different kinds", edge.A, edge.B)
		}

		key := keyFor(edge.A, edge.B)
		if _, exists := e.edges[key]; exists {
			continue
		}
		e.edges[key] = edge

		if e.merges(edge.Type) {
			e.union(edge.A, edge.B)
		}
	}
	return nil
}

// ClusterOf returns the cluster id of the record: the lowest record id in
// its component.
func (e *Engine) ClusterOf(id int64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.parent[id]; !ok {
		return 0, false
	}
	return e.minID[e.find(id)], true
}

// Members returns the sorted member ids of the cluster.
func (e *Engine) Members(clusterID int64) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.membersLocked(clusterID)
}

func (e *Engine) membersLocked(clusterID int64) ([]int64, error) {
	if _, ok := e.parent[clusterID]; !ok {
		return nil, fmt.Errorf("%w: cluster %d", ErrUnknownRecord, clusterID)
	}
	root := e.find(clusterID)
	if e.minID[root] != clusterID {
		return nil, fmt.Errorf("cluster %d does not exist", clusterID)
	}
	out := append([]int64(nil), e.members[root]...)
	if len(out) == 0 {
		return nil, fmt.Errorf("invariant violation: cluster %d has no members", clusterID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Snapshot returns every cluster, ordered by cluster id.
func (e *Engine) Snapshot() []Info {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]Info, 0, len(e.members))
	for root, members := range e.members {
		if len(members) == 0 {
			continue
		}
		sorted := append([]int64(nil), members...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		infos = append(infos, Info{
			ID:         e.minID[root],
			Kind:       e.kinds[root],
			Members:    sorted,
			Confidence: e.confidenceLocked(root),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Confidence is the mean score of merging edges internal to the cluster;
// singletons score 1.
func (e *Engine) Confidence(clusterID int64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.parent[clusterID]; !ok {
		return 0, fmt.Errorf("%w: cluster %d", ErrUnknownRecord, clusterID)
	}
	root := e.find(clusterID)
	if e.minID[root] != clusterID {
		return 0, fmt.Errorf("cluster %d does not exist", clusterID)
	}
	return e.confidenceLocked(root), nil
}

func (e *Engine) confidenceLocked(root int64) float64 {
	var sum float64
	count := 0
	for key, edge := range e.edges {
		if !e.merges(edge.Type) {
			continue
		}
		if e.find(key.a) == root {
			sum += edge.Score
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return sum / float64(count)
}

// Edges returns the stored edges touching the record, canonical order.
func (e *Engine) Edges(recordID int64) []match.Edge {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []match.Edge
	for key, edge := range e.edges {
		if key.a == recordID || key.b == recordID {
			out = append(out, edge)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// InvalidateEdge removes a previously accepted edge and recomputes connected
// components for the affected cluster from its surviving edges, splitting it
// as needed. Returns the new cluster id for every record of the old cluster.
func (e *Engine) InvalidateEdge(a, b int64) (map[int64]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := keyFor(a, b)
	edge, ok := e.edges[key]
	if !ok {
		return nil, fmt.Errorf("%w: %d-%d", ErrEdgeNotFound, key.a, key.b)
	}
	delete(e.edges, key)

	if !e.merges(edge.Type) {
		// The edge never joined the clusters; nothing to recompute.
		return map[int64]int64{}, nil
	}

	root := e.find(a)
	affected := append([]int64(nil), e.members[root]...)

	// Rebuild the component partition for the affected members only.
	inCluster := make(map[int64]struct{}, len(affected))
	for _, id := range affected {
		inCluster[id] = struct{}{}
		e.parent[id] = id
		e.size[id] = 1
		e.minID[id] = id
		e.members[id] = []int64{id}
	}
	for k, surviving := range e.edges {
		if !e.merges(surviving.Type) {
			continue
		}
		if _, ok := inCluster[k.a]; !ok {
			continue
		}
		if _, ok := inCluster[k.b]; !ok {
			continue
		}
		e.union(k.a, k.b)
	}

	assignments := make(map[int64]int64, len(affected))
	for _, id := range affected {
		assignments[id] = e.minID[e.find(id)]
	}
	return assignments, nil
}

func (e *Engine) merges(t match.Type) bool {
	if t == match.TypeReposting {
		return e.mergeReposts
	}
	return true
}

func (e *Engine) find(id int64) int64 {
	root := id
	for e.parent[root] != root {
		root = e.parent[root]
	}
	for e.parent[id] != root {
		e.parent[id], id = root, e.parent[id]
	}
	return root
}

func (e *Engine) union(a, b int64) {
	rootA, rootB := e.find(a), e.find(b)
	if rootA == rootB {
		return
	}
	if e.size[rootA] < e.size[rootB] {
		rootA, rootB = rootB, rootA
	}
	e.parent[rootB] = rootA
	e.size[rootA] += e.size[rootB]
	e.members[rootA] = append(e.members[rootA], e.members[rootB]...)
	delete(e.members, rootB)
	delete(e.size, rootB)
	if e.minID[rootB] < e.minID[rootA] {
		e.minID[rootA] = e.minID[rootB]
	}
	delete(e.minID, rootB)
}
