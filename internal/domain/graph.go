package domain

// Snapshot is a read-only copy of the view for rendering
type Snapshot struct {
	Tick  uint64         `json:"tick"`
	Nodes []SnapshotNode `json:"nodes"`
	Links []SnapshotLink `json:"links"`
}

// SnapshotNode is a node as the renderer sees it
type SnapshotNode struct {
	Address  Address  `json:"address"`
	Label    string   `json:"label"`
	Info     string   `json:"info,omitempty"`
	Center   Position `json:"center"`
	Velocity Position `json:"velocity"`
	Locked   bool     `json:"locked"`
	Moving   bool     `json:"moving"`
}

// SnapshotLink is a link with resolved endpoint positions
type SnapshotLink struct {
	Child  Address  `json:"child"`
	Parent Address  `json:"parent"`
	Weight float64  `json:"weight"`
	From   Position `json:"from"`
	To     Position `json:"to"`
}

// NewSnapshotNode captures a node's current state
func NewSnapshotNode(n *Node) SnapshotNode {
	x, y := n.Center()
	dx, dy := n.Velocity()
	return SnapshotNode{
		Address:  n.Address(),
		Label:    n.DisplayName(),
		Info:     n.InfoText(),
		Center:   Position{X: x, Y: y},
		Velocity: Position{X: dx, Y: dy},
		Locked:   n.IsLocked(),
		Moving:   n.IsBeingMoved(),
	}
}

// Node returns the snapshot entry for addr
func (s *Snapshot) Node(addr Address) (SnapshotNode, bool) {
	for _, n := range s.Nodes {
		if n.Address == addr {
			return n, true
		}
	}
	return SnapshotNode{}, false
}
