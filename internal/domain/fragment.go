package domain

// FragmentLink is a reported routing relationship
type FragmentLink struct {
	Child  Address `json:"child" yaml:"child"`
	Parent Address `json:"parent" yaml:"parent"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Key returns the link key
func (l FragmentLink) Key() LinkKey {
	return LinkKey{Child: l.Child, Parent: l.Parent}
}

// Fragment is the topology a single source currently observes
type Fragment struct {
	Nodes []Address      `json:"nodes" yaml:"nodes"`
	Links []FragmentLink `json:"links" yaml:"links"`
}

// NewFragment creates an empty fragment
func NewFragment() *Fragment {
	return &Fragment{
		Nodes: make([]Address, 0),
		Links: make([]FragmentLink, 0),
	}
}

// AddNode adds a node, ignoring duplicates
func (f *Fragment) AddNode(addr Address) {
	for _, existing := range f.Nodes {
		if existing == addr {
			return
		}
	}
	f.Nodes = append(f.Nodes, addr)
}

// AddLink adds a link and both its endpoints. A link already present keeps
// its first weight.
func (f *Fragment) AddLink(child, parent Address, weight float64) {
	f.AddNode(child)
	f.AddNode(parent)
	for _, existing := range f.Links {
		if existing.Child == child && existing.Parent == parent {
			return
		}
	}
	f.Links = append(f.Links, FragmentLink{Child: child, Parent: parent, Weight: weight})
}

// IsEmpty reports whether the fragment carries nothing
func (f *Fragment) IsEmpty() bool {
	return f == nil || (len(f.Nodes) == 0 && len(f.Links) == 0)
}
