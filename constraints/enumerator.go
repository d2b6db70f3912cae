package constraints

import (
	"slices"

	"github.com/happyhackingspace/sparsepr/alphabet"
	"github.com/happyhackingspace/sparsepr/corpus"
)

// RootParent is the parent entity id recorded for root groups.
const RootParent = -1

// Direction of an edge relative to its parent.
type Direction string

const (
	// Right means the child follows its parent.
	Right Direction = "right"
	// Left means the child precedes its parent.
	Left Direction = "left"
)

// EdgeDirection returns Right when child > parent, Left otherwise.
func EdgeDirection(child, parent int) Direction {
	if child > parent {
		return Right
	}
	return Left
}

// Enumerator assigns dense group ids to constraint groups.
//
// Group ids come from an append-only alphabet of keys, so the first time a
// key is seen fixes its id and the order in which a corpus is traversed
// fixes the layout of every vector indexed by group.
type Enumerator struct {
	corpus       *corpus.Corpus
	child        Entity
	parent       Entity
	useRoot      bool
	useDirection bool

	groups      *alphabet.Alphabet
	groupChild  []int
	groupParent []int
	perChild    [][]int
}

// NewEnumerator creates an enumerator for the given entity types.
func NewEnumerator(c *corpus.Corpus, child, parent Entity, useRoot, useDirection bool) *Enumerator {
	e := &Enumerator{
		corpus:       c,
		child:        child,
		parent:       parent,
		useRoot:      useRoot,
		useDirection: useDirection,
		groups:       alphabet.New(),
	}
	e.perChild = make([][]int, e.NumChildIDs())
	return e
}

// NumChildIDs is the size of the child id space. Without direction
// splitting it is doubled to reserve separate left and right ranges.
func (e *Enumerator) NumChildIDs() int {
	if e.useDirection {
		return e.child.Count(e.corpus)
	}
	return 2 * e.child.Count(e.corpus)
}

// NumParentIDs is the size of the parent id space, plus one reserved slot
// when root groups are disabled.
func (e *Enumerator) NumParentIDs() int {
	if e.useRoot {
		return e.parent.Count(e.corpus)
	}
	return e.parent.Count(e.corpus) + 1
}

// GroupForRoot returns the group of the virtual root attaching to token
// child, or false when root groups are disabled.
func (e *Enumerator) GroupForRoot(in *corpus.Instance, child int) (int, bool) {
	if !e.useRoot {
		return 0, false
	}
	childID := e.child.Resolve(in, child)
	g := e.groups.Add("root=" + e.child.Name(e.corpus, childID))
	e.register(g, childID, RootParent)
	return g, true
}

// GroupForEdge returns the group of the edge parent -> child.
func (e *Enumerator) GroupForEdge(in *corpus.Instance, child, parent int) int {
	childID := e.child.Resolve(in, child)
	parentID := e.parent.Resolve(in, parent)
	key := edgeKey(e.child.Name(e.corpus, childID), e.parent.Name(e.corpus, parentID), e.direction(child, parent))
	g := e.groups.Add(key)
	if !slices.Contains(e.perChild[childID], g) {
		e.perChild[childID] = append(e.perChild[childID], g)
	}
	e.register(g, childID, parentID)
	return g
}

// LookupEdgeGroup returns the group for an edge named by surface strings
// without creating it. dir is ignored when direction splitting is off.
func (e *Enumerator) LookupEdgeGroup(childName, parentName string, dir Direction) (int, bool) {
	if !e.useDirection {
		dir = ""
	}
	return e.groups.Get(edgeKey(childName, parentName, dir))
}

func (e *Enumerator) direction(child, parent int) Direction {
	if !e.useDirection {
		return ""
	}
	return EdgeDirection(child, parent)
}

func edgeKey(child, parent string, dir Direction) string {
	return "edge=" + child + "," + parent + ":" + string(dir)
}

// register records the child and parent ids of a group the first time it is seen.
func (e *Enumerator) register(g, childID, parentID int) {
	if g < len(e.groupChild) {
		return
	}
	if g != len(e.groupChild) {
		panic("constraints: group ids assigned out of order")
	}
	e.groupChild = append(e.groupChild, childID)
	e.groupParent = append(e.groupParent, parentID)
}

// NumGroups returns the number of groups assigned so far.
func (e *Enumerator) NumGroups() int { return e.groups.Size() }

// GroupName returns the key of group g, e.g. "edge=dog,DET:right".
func (e *Enumerator) GroupName(g int) string { return e.groups.Name(g) }

// ChildOf returns the child entity id of group g.
func (e *Enumerator) ChildOf(g int) int { return e.groupChild[g] }

// ParentOf returns the parent entity id of group g, or RootParent.
func (e *Enumerator) ParentOf(g int) int { return e.groupParent[g] }

// IsRootGroup reports whether g is a root group.
func (e *Enumerator) IsRootGroup(g int) bool { return e.groupParent[g] == RootParent }

// GroupsPerChild returns, per child entity id, the distinct edge groups
// that child has produced, in first-seen order.
func (e *Enumerator) GroupsPerChild() [][]int { return e.perChild }

// ChildEntity returns the child entity type.
func (e *Enumerator) ChildEntity() Entity { return e.child }

// ParentEntity returns the parent entity type.
func (e *Enumerator) ParentEntity() Entity { return e.parent }

// UseRoot reports whether root groups are enabled.
func (e *Enumerator) UseRoot() bool { return e.useRoot }

// UseDirection reports whether edges are split by direction.
func (e *Enumerator) UseDirection() bool { return e.useDirection }

// Corpus returns the corpus the enumerator names entities from.
func (e *Enumerator) Corpus() *corpus.Corpus { return e.corpus }
