package constraints

import (
	"fmt"

	"github.com/happyhackingspace/sparsepr/corpus"
)

// Entity selects the token attribute that identifies one side of an edge.
// WordEntity and TagEntity are the only implementations.
type Entity interface {
	// Resolve returns the entity id of token pos in in.
	Resolve(in *corpus.Instance, pos int) int
	// Name returns the display string for an entity id.
	Name(c *corpus.Corpus, id int) string
	// Count returns the number of distinct entity ids in c.
	Count(c *corpus.Corpus) int
	String() string
	entity()
}

// WordEntity identifies tokens by surface form.
type WordEntity struct{}

func (WordEntity) Resolve(in *corpus.Instance, pos int) int { return in.Words[pos] }
func (WordEntity) Name(c *corpus.Corpus, id int) string     { return c.WordName(id) }
func (WordEntity) Count(c *corpus.Corpus) int               { return c.NumWordTypes() }
func (WordEntity) String() string                           { return "word" }
func (WordEntity) entity()                                  {}

// TagEntity identifies tokens by coarse tag.
type TagEntity struct{}

func (TagEntity) Resolve(in *corpus.Instance, pos int) int { return in.Tags[pos] }
func (TagEntity) Name(c *corpus.Corpus, id int) string     { return c.TagName(id) }
func (TagEntity) Count(c *corpus.Corpus) int               { return c.NumTags() }
func (TagEntity) String() string                           { return "tag" }
func (TagEntity) entity()                                  {}

// ParseEntity maps "word" or "tag" to an Entity.
func ParseEntity(s string) (Entity, error) {
	switch s {
	case "word":
		return WordEntity{}, nil
	case "tag":
		return TagEntity{}, nil
	}
	return nil, fmt.Errorf("constraints: unknown entity type %q (want word or tag)", s)
}
