// Package alphabet provides an append-only bidirectional mapping between
// strings and dense integer ids.
//
// Ids are assigned in first-seen order starting at 0 and are never reused or
// reassigned. Callers rely on this order: it fixes the layout of every vector
// indexed by alphabet ids, so two runs over the same input produce the same ids.
package alphabet

// Alphabet maps between strings and integer IDs.
type Alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

// New creates an empty alphabet.
func New() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string without inserting it.
func (a *Alphabet) Get(s string) (int, bool) {
	id, ok := a.ToID[s]
	return id, ok
}

// Name returns the string for an ID, or "" if the ID is out of range.
func (a *Alphabet) Name(id int) string {
	if id < 0 || id >= len(a.ToStr) {
		return ""
	}
	return a.ToStr[id]
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}
