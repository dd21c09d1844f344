package symbols

// GroupArena is a union-find over method entries. Every entry starts as
// a singleton group; Union merges two groups and the root of a group owns
// its member list. Entries refer to their group by handle, so no entry
// points at another.
type GroupArena struct {
	parent  []int
	members [][]*Method
}

// NewGroupArena returns an empty arena.
func NewGroupArena() *GroupArena { return &GroupArena{} }

func (a *GroupArena) add(m *Method) int {
	h := len(a.parent)
	a.parent = append(a.parent, h)
	a.members = append(a.members, []*Method{m})
	return h
}

func (a *GroupArena) root(h int) int {
	for a.parent[h] != h {
		a.parent[h] = a.parent[a.parent[h]]
		h = a.parent[h]
	}
	return h
}

// Union merges the groups of x and y. It reports whether they were
// separate.
func (a *GroupArena) Union(x, y *Method) bool {
	rx, ry := a.root(x.handle), a.root(y.handle)
	if rx == ry {
		return false
	}
	if len(a.members[rx]) < len(a.members[ry]) {
		rx, ry = ry, rx
	}
	a.parent[ry] = rx
	a.members[rx] = append(a.members[rx], a.members[ry]...)
	a.members[ry] = nil
	return true
}

// Members returns every entry in m's group, m included.
func (a *GroupArena) Members(m *Method) []*Method {
	return a.members[a.root(m.handle)]
}

// Same reports whether x and y are in one group.
func (a *GroupArena) Same(x, y *Method) bool {
	return a.root(x.handle) == a.root(y.handle)
}

// Groups returns the number of distinct groups.
func (a *GroupArena) Groups() int {
	n := 0
	for h := range a.parent {
		if a.parent[h] == h {
			n++
		}
	}
	return n
}
