// Package layout implements the force simulation that positions nodes.
//
// Each tick, every node is pulled toward its link partners by springs whose
// rest length comes from the link weight, pushed away from nearby nodes by a
// fixed-magnitude repulsion, and then integrated one time step. The result is
// a local, iterative arrangement with no convergence guarantee.
package layout

import (
	"math"
	"math/rand/v2"
	"time"

	"rplview/internal/domain"
	"rplview/internal/topology"
)

// Params tunes the simulation
type Params struct {
	// Interval is the simulated time per tick
	Interval time.Duration
	// Bounds confines node centers
	Bounds domain.Bounds
	// RepulsionRadius is the distance beyond which nodes do not repel
	RepulsionRadius float64
	// RepulsionStrength is the magnitude of the per-tick repulsion increment
	RepulsionStrength float64
	// MaxRestLength caps a spring's rest length
	MaxRestLength float64
	// Damping multiplies velocity once per tick
	Damping float64
	// MinDistance floors spring length to avoid division by zero
	MinDistance float64
}

// DefaultParams returns the stock tuning
func DefaultParams() Params {
	return Params{
		Interval:          40 * time.Millisecond,
		Bounds:            domain.Bounds{MinX: 0, MinY: 0, MaxX: 500, MaxY: 500},
		RepulsionRadius:   100,
		RepulsionStrength: 10,
		MaxRestLength:     300,
		Damping:           0.9,
		MinDistance:       0.01,
	}
}

// Rand supplies the symmetry-breaking nudge for coincident nodes
type Rand interface {
	// Float64 returns a value in [0, 1)
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Engine advances the simulation. It never creates or destroys entities.
type Engine struct {
	params Params
	rng    Rand
}

// New creates an engine. A nil rng uses the process-wide generator, which
// makes coincident-node separation non-deterministic.
func New(params Params, rng Rand) *Engine {
	if rng == nil {
		rng = globalRand{}
	}
	return &Engine{params: params, rng: rng}
}

// Params returns the engine's tuning
func (e *Engine) Params() Params { return e.params }

// Rand returns the engine's random source
func (e *Engine) Rand() Rand { return e.rng }

// Step runs one tick over the index.
//
// Nodes are visited in index order and each node is integrated right after
// its own forces are computed, so later nodes see earlier nodes' new
// positions within the same tick.
func (e *Engine) Step(ix *topology.Index) {
	for n1 := range ix.Nodes() {
		e.applySprings(ix, n1)
		e.applyRepulsion(ix, n1)
		n1.Integrate(e.params.Interval, e.params.Damping, e.params.Bounds)
	}
}

// applySprings pushes both endpoints of every link incident to n
func (e *Engine) applySprings(ix *topology.Index, n *domain.Node) {
	for link := range ix.IncidentLinks(n.Address()) {
		from, okFrom := ix.Node(link.Child())
		to, okTo := ix.Node(link.Parent())
		if !okFrom || !okTo {
			continue
		}

		x1, y1 := from.Center()
		x2, y2 := to.Center()
		vx := x2 - x1
		vy := y2 - y1
		dist := math.Sqrt(vx*vx + vy*vy)
		if dist < e.params.MinDistance {
			dist = e.params.MinDistance
		}

		rest := link.RestLength(e.params.MaxRestLength)
		factor := (rest - dist) / (dist * 3)
		from.Push(-factor*vx, -factor*vy)
		to.Push(factor*vx, factor*vy)
	}
}

// applyRepulsion sums inverse-distance repulsion from nodes inside the
// cutoff radius and applies it to n at a fixed magnitude
func (e *Engine) applyRepulsion(ix *topology.Index, n *domain.Node) {
	cutoff := e.params.RepulsionRadius * e.params.RepulsionRadius
	x1, y1 := n.Center()

	var dx, dy float64
	for other := range ix.Nodes() {
		if other == n {
			continue
		}
		x2, y2 := other.Center()
		vx := x1 - x2
		vy := y1 - y2
		d2 := vx*vx + vy*vy

		if d2 == 0 {
			dx += e.rng.Float64()
			dy += e.rng.Float64()
		} else if d2 < cutoff {
			dx += vx / d2
			dy += vy / d2
		}
	}

	mag := math.Sqrt(dx*dx + dy*dy)
	if mag > 0 {
		n.Push(e.params.RepulsionStrength*dx/mag, e.params.RepulsionStrength*dy/mag)
	}
}
