package domain

// Position is a 2D coordinate
type Position struct {
	X float64 `json:"x" yaml:"x" toml:"x"`
	Y float64 `json:"y" yaml:"y" toml:"y"`
}

// NodeLayout is the persisted view state of one node. Nil fields were not
// stored and leave the node's current value alone.
type NodeLayout struct {
	Position *Position `json:"position,omitempty"`
	Locked   *bool     `json:"locked,omitempty"`
	Name     string    `json:"name,omitempty"`
}

// NewNodeLayout creates a layout entry with a position and lock state
func NewNodeLayout(x, y float64, locked bool) NodeLayout {
	return NodeLayout{
		Position: &Position{X: x, Y: y},
		Locked:   &locked,
	}
}

// Layout is a saved arrangement of the view, keyed by node address
type Layout struct {
	Background string                 `json:"background,omitempty"`
	Nodes      map[Address]NodeLayout `json:"nodes"`
}

// NewLayout creates an empty layout
func NewLayout() *Layout {
	return &Layout{Nodes: make(map[Address]NodeLayout)}
}

// Lookup returns the entry for addr, if any
func (l *Layout) Lookup(addr Address) (NodeLayout, bool) {
	if l == nil || l.Nodes == nil {
		return NodeLayout{}, false
	}
	entry, ok := l.Nodes[addr]
	return entry, ok
}

// Clone returns a copy whose entries can be replaced without touching l
func (l *Layout) Clone() *Layout {
	out := &Layout{Background: l.Background, Nodes: make(map[Address]NodeLayout, len(l.Nodes))}
	for addr, entry := range l.Nodes {
		out.Nodes[addr] = entry.clone()
	}
	return out
}

func (e NodeLayout) clone() NodeLayout {
	if e.Position != nil {
		pos := *e.Position
		e.Position = &pos
	}
	if e.Locked != nil {
		locked := *e.Locked
		e.Locked = &locked
	}
	return e
}

// Set stores the entry for addr
func (l *Layout) Set(addr Address, entry NodeLayout) {
	if l.Nodes == nil {
		l.Nodes = make(map[Address]NodeLayout)
	}
	l.Nodes[addr] = entry
}
