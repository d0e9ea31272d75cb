package graph

import "sync"

// Tx is an open transaction on a graph. The session layer only ever needs to
// roll one back; commit discipline belongs to the scripts themselves.
type Tx interface {
	Rollback() error
	Open() bool
}

// Graph is a named, server-registered graph instance. The structure behind it
// is opaque to the session layer.
type Graph struct {
	Name string
	tx   Tx
}

func NewGraph(name string, tx Tx) *Graph {
	return &Graph{Name: name, tx: tx}
}

// Tx returns the graph's transaction handle, which may be nil for
// non-transactional graphs.
func (g *Graph) Tx() Tx { return g.tx }

// Rollback aborts the graph's open transaction, if any.
func (g *Graph) Rollback() error {
	if g.tx == nil || !g.tx.Open() {
		return nil
	}
	return g.tx.Rollback()
}

// TraversalSource is a named, server-registered traversal source bound to a
// graph.
type TraversalSource struct {
	Name  string
	Graph *Graph
}

// Rollback aborts the open transaction of the underlying graph.
func (ts *TraversalSource) Rollback() error {
	if ts.Graph == nil {
		return nil
	}
	return ts.Graph.Rollback()
}

// Manager holds the global registries of named graphs and traversal sources.
// Registration happens at server bootstrap; request handling only reads, so
// lookups take no lock beyond the map's own guard.
type Manager struct {
	mu      sync.RWMutex
	graphs  map[string]*Graph
	sources map[string]*TraversalSource
}

func NewManager() *Manager {
	return &Manager{
		graphs:  make(map[string]*Graph),
		sources: make(map[string]*TraversalSource),
	}
}

func (m *Manager) AddGraph(g *Graph) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[g.Name] = g
}

func (m *Manager) AddTraversalSource(ts *TraversalSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[ts.Name] = ts
}

// Graph resolves a registered graph by name.
func (m *Manager) Graph(name string) (*Graph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[name]
	return g, ok
}

// TraversalSource resolves a registered traversal source by name.
func (m *Manager) TraversalSource(name string) (*TraversalSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.sources[name]
	return ts, ok
}

func (m *Manager) GraphCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.graphs)
}
