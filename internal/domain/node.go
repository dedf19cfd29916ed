package domain

import "time"

// Bounds is the rectangle node centers are confined to
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Contains reports whether (x, y) lies inside the bounds, edges included
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Node is a positioned device in the topology view.
//
// State is reachable only through methods so each collaborator's writes are
// explicit: the simulation uses Push/Integrate, interaction uses
// SetBeingMoved/SetCenter/Fling, persistence uses SetCenter/SetLocked/SetName.
type Node struct {
	address    Address
	x, y       float64
	dx, dy     float64
	beingMoved bool
	locked     bool
	name       string
	infoText   string
}

// NewNode creates a node centered at (x, y) at rest
func NewNode(addr Address, x, y float64) *Node {
	return &Node{address: addr, x: x, y: y}
}

// Address returns the node's key
func (n *Node) Address() Address { return n.address }

// Center returns the node's center position
func (n *Node) Center() (x, y float64) { return n.x, n.y }

// SetCenter moves the node center unconditionally
func (n *Node) SetCenter(x, y float64) {
	n.x, n.y = x, y
}

// Velocity returns the current velocity in units per second
func (n *Node) Velocity() (dx, dy float64) { return n.dx, n.dy }

// SetVelocity assigns the velocity unconditionally
func (n *Node) SetVelocity(dx, dy float64) {
	n.dx, n.dy = dx, dy
}

// Push adds a velocity increment. Ignored while the node is being moved or locked.
func (n *Node) Push(dx, dy float64) {
	if n.Frozen() {
		return
	}
	n.dx += dx
	n.dy += dy
}

// IsBeingMoved reports whether external interaction currently controls the node
func (n *Node) IsBeingMoved() bool { return n.beingMoved }

// SetBeingMoved sets the transient drag flag
func (n *Node) SetBeingMoved(moving bool) { n.beingMoved = moving }

// IsLocked reports whether the node is pinned in place
func (n *Node) IsLocked() bool { return n.locked }

// SetLocked sets the persistent pin flag
func (n *Node) SetLocked(locked bool) { n.locked = locked }

// Frozen reports whether the simulation must leave the node alone
func (n *Node) Frozen() bool { return n.beingMoved || n.locked }

// Name returns the friendly name, empty if unset
func (n *Node) Name() string { return n.name }

// SetName sets the friendly name; an empty name restores the default
func (n *Node) SetName(name string) { n.name = name }

// DisplayName returns the friendly name, or the address-derived default
func (n *Node) DisplayName() string {
	if n.name != "" {
		return n.name
	}
	return n.address.DefaultName()
}

// InfoText returns the secondary label text
func (n *Node) InfoText() string { return n.infoText }

// SetInfoText sets the secondary label text
func (n *Node) SetInfoText(text string) { n.infoText = text }

// Fling hands a release gesture's kinetic energy to the simulation:
// velocity becomes displacement * 1000 / elapsed milliseconds.
// Nothing happens when elapsed is under a millisecond.
func (n *Node) Fling(dx, dy float64, elapsed time.Duration) bool {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return false
	}
	n.dx = dx * 1000 / float64(ms)
	n.dy = dy * 1000 / float64(ms)
	return true
}

// Integrate advances the node by one tick of length interval. Velocity is
// damped by a fixed factor per tick regardless of interval. A coordinate that
// leaves the bounds is clamped and its velocity component reflected at half
// magnitude.
func (n *Node) Integrate(interval time.Duration, damping float64, b Bounds) {
	if n.Frozen() {
		return
	}

	dt := float64(interval.Milliseconds()) / 1000
	x := n.x + n.dx*dt
	y := n.y + n.dy*dt
	n.dx *= damping
	n.dy *= damping

	if x < b.MinX {
		x = b.MinX
		n.dx = -n.dx / 2
	}
	if y < b.MinY {
		y = b.MinY
		n.dy = -n.dy / 2
	}
	if x > b.MaxX {
		x = b.MaxX
		n.dx = -n.dx / 2
	}
	if y > b.MaxY {
		y = b.MaxY
		n.dy = -n.dy / 2
	}

	n.x, n.y = x, y
}
