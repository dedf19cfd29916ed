package domain

// Link is a directed, weighted routing relationship from a child to its parent.
// It refers to its endpoints by address only; the topology index resolves them.
type Link struct {
	key    LinkKey
	weight float64
}

// NewLink creates a link between child and parent with the given weight
func NewLink(child, parent Address, weight float64) *Link {
	return &Link{
		key:    LinkKey{Child: child, Parent: parent},
		weight: weight,
	}
}

// Key returns the (child, parent) key
func (l *Link) Key() LinkKey { return l.key }

// Child returns the child endpoint address
func (l *Link) Child() Address { return l.key.Child }

// Parent returns the parent endpoint address
func (l *Link) Parent() Address { return l.key.Parent }

// Weight returns the link's affinity value
func (l *Link) Weight() float64 { return l.weight }

// SetWeight replaces the weight; it takes effect on the next tick.
// Callers must supply weight >= 0.
func (l *Link) SetWeight(w float64) { l.weight = w }

// RestLength is the separation the spring drives the endpoints toward:
// weight/10, capped at max
func (l *Link) RestLength(max float64) float64 {
	rest := l.weight / 10
	if rest > max {
		return max
	}
	return rest
}
