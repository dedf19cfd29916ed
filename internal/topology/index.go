// Package topology maintains the live set of nodes and links.
//
// The Index owns entity lifetime. Nodes are keyed by address and links by
// their (child, parent) pair; links hold endpoint addresses rather than node
// pointers, and the index keeps a per-address incidence set so a node's links
// can be found and removed before the node itself.
package topology

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"rplview/internal/domain"
)

var (
	// ErrDuplicateKey is returned when inserting a key that is already present
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned when removing a key that is absent
	ErrNotFound = errors.New("not found")
	// ErrDanglingEndpoint is returned when a link names an unknown node
	ErrDanglingEndpoint = errors.New("dangling endpoint")
)

// Observer is notified of every removal, in the order removals happen
type Observer interface {
	LinkRemoved(link *domain.Link)
	NodeRemoved(node *domain.Node)
}

// Index is the authoritative node and link store. It is not safe for
// concurrent use; callers serialize access (see service.Scene).
type Index struct {
	nodes    map[domain.Address]*domain.Node
	links    map[domain.LinkKey]*domain.Link
	incident map[domain.Address]map[domain.LinkKey]struct{}

	// Sorted key orders give iteration a stable order
	nodeOrder []domain.Address
	linkOrder []domain.LinkKey

	observer Observer
}

// New creates an empty index
func New() *Index {
	return &Index{
		nodes:    make(map[domain.Address]*domain.Node),
		links:    make(map[domain.LinkKey]*domain.Link),
		incident: make(map[domain.Address]map[domain.LinkKey]struct{}),
	}
}

// SetObserver registers the removal observer; nil disables it
func (ix *Index) SetObserver(o Observer) {
	ix.observer = o
}

// Len returns the number of nodes
func (ix *Index) Len() int { return len(ix.nodes) }

// LinkLen returns the number of links
func (ix *Index) LinkLen() int { return len(ix.links) }

// InsertNode adds node under addr
func (ix *Index) InsertNode(addr domain.Address, node *domain.Node) error {
	if _, exists := ix.nodes[addr]; exists {
		return fmt.Errorf("node %s: %w", addr, ErrDuplicateKey)
	}
	if node.Address() != addr {
		return fmt.Errorf("node %s inserted under key %s", node.Address(), addr)
	}

	ix.nodes[addr] = node
	pos, _ := slices.BinarySearch(ix.nodeOrder, addr)
	ix.nodeOrder = slices.Insert(ix.nodeOrder, pos, addr)
	return nil
}

// RemoveNode removes the node at addr and every link incident to it.
// Links are removed before the node.
func (ix *Index) RemoveNode(addr domain.Address) (*domain.Node, error) {
	node, exists := ix.nodes[addr]
	if !exists {
		return nil, fmt.Errorf("node %s: %w", addr, ErrNotFound)
	}

	for key := range ix.sortedIncident(addr) {
		ix.removeLink(key)
	}

	delete(ix.nodes, addr)
	delete(ix.incident, addr)
	if pos, found := slices.BinarySearch(ix.nodeOrder, addr); found {
		ix.nodeOrder = slices.Delete(ix.nodeOrder, pos, pos+1)
	}
	if ix.observer != nil {
		ix.observer.NodeRemoved(node)
	}
	return node, nil
}

// Node looks up the node at addr
func (ix *Index) Node(addr domain.Address) (*domain.Node, bool) {
	node, ok := ix.nodes[addr]
	return node, ok
}

// InsertLink adds link under (child, parent). Both endpoints must already exist.
func (ix *Index) InsertLink(child, parent domain.Address, link *domain.Link) error {
	key := domain.LinkKey{Child: child, Parent: parent}
	if _, exists := ix.links[key]; exists {
		return fmt.Errorf("link %s: %w", key, ErrDuplicateKey)
	}
	if _, ok := ix.nodes[child]; !ok {
		return fmt.Errorf("link %s: child %s: %w", key, child, ErrDanglingEndpoint)
	}
	if _, ok := ix.nodes[parent]; !ok {
		return fmt.Errorf("link %s: parent %s: %w", key, parent, ErrDanglingEndpoint)
	}
	if link.Key() != key {
		return fmt.Errorf("link %s inserted under key %s", link.Key(), key)
	}

	ix.links[key] = link
	ix.addIncident(child, key)
	ix.addIncident(parent, key)
	pos, _ := slices.BinarySearchFunc(ix.linkOrder, key, domain.LinkKey.Compare)
	ix.linkOrder = slices.Insert(ix.linkOrder, pos, key)
	return nil
}

// RemoveLink removes the link at (child, parent)
func (ix *Index) RemoveLink(child, parent domain.Address) (*domain.Link, error) {
	key := domain.LinkKey{Child: child, Parent: parent}
	if _, exists := ix.links[key]; !exists {
		return nil, fmt.Errorf("link %s: %w", key, ErrNotFound)
	}
	return ix.removeLink(key), nil
}

// Link looks up the link at (child, parent)
func (ix *Index) Link(child, parent domain.Address) (*domain.Link, bool) {
	link, ok := ix.links[domain.LinkKey{Child: child, Parent: parent}]
	return link, ok
}

// Nodes yields every node in ascending address order. The order is captured
// when iteration starts, so removing nodes while iterating is safe.
func (ix *Index) Nodes() iter.Seq[*domain.Node] {
	return func(yield func(*domain.Node) bool) {
		for _, addr := range slices.Clone(ix.nodeOrder) {
			node, ok := ix.nodes[addr]
			if !ok {
				continue
			}
			if !yield(node) {
				return
			}
		}
	}
}

// Links yields every link in ascending key order
func (ix *Index) Links() iter.Seq[*domain.Link] {
	return func(yield func(*domain.Link) bool) {
		for _, key := range slices.Clone(ix.linkOrder) {
			link, ok := ix.links[key]
			if !ok {
				continue
			}
			if !yield(link) {
				return
			}
		}
	}
}

// IncidentLinks yields the links that have addr as either endpoint
func (ix *Index) IncidentLinks(addr domain.Address) iter.Seq[*domain.Link] {
	return func(yield func(*domain.Link) bool) {
		for key := range ix.sortedIncident(addr) {
			link, ok := ix.links[key]
			if !ok {
				continue
			}
			if !yield(link) {
				return
			}
		}
	}
}

// Clear removes every link, then every node
func (ix *Index) Clear() {
	for _, key := range slices.Clone(ix.linkOrder) {
		ix.removeLink(key)
	}
	for _, addr := range slices.Clone(ix.nodeOrder) {
		node := ix.nodes[addr]
		delete(ix.nodes, addr)
		if ix.observer != nil {
			ix.observer.NodeRemoved(node)
		}
	}
	ix.nodeOrder = ix.nodeOrder[:0]
	clear(ix.incident)
}

func (ix *Index) addIncident(addr domain.Address, key domain.LinkKey) {
	set, ok := ix.incident[addr]
	if !ok {
		set = make(map[domain.LinkKey]struct{})
		ix.incident[addr] = set
	}
	set[key] = struct{}{}
}

func (ix *Index) removeLink(key domain.LinkKey) *domain.Link {
	link := ix.links[key]
	delete(ix.links, key)
	if set, ok := ix.incident[key.Child]; ok {
		delete(set, key)
	}
	if set, ok := ix.incident[key.Parent]; ok {
		delete(set, key)
	}
	if pos, found := slices.BinarySearchFunc(ix.linkOrder, key, domain.LinkKey.Compare); found {
		ix.linkOrder = slices.Delete(ix.linkOrder, pos, pos+1)
	}
	if ix.observer != nil {
		ix.observer.LinkRemoved(link)
	}
	return link
}

// sortedIncident returns a sorted copy of addr's incident keys
func (ix *Index) sortedIncident(addr domain.Address) iter.Seq[domain.LinkKey] {
	keys := make([]domain.LinkKey, 0, len(ix.incident[addr]))
	for key := range ix.incident[addr] {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, domain.LinkKey.Compare)
	return slices.Values(keys)
}
