// Package corpus holds tagged sentences as dense word and tag ids.
package corpus

import (
	"errors"

	"github.com/happyhackingspace/sparsepr/alphabet"
)

// ErrEmptyCorpus is returned when a reader produces no sentences.
var ErrEmptyCorpus = errors.New("corpus: no sentences")

// Instance is a single sentence. Words and Tags are parallel and index
// tokens 0..Len()-1.
type Instance struct {
	Words []int
	Tags  []int
}

// Len returns the number of tokens.
func (in *Instance) Len() int {
	return len(in.Words)
}

// Corpus is a list of instances sharing word and tag alphabets.
type Corpus struct {
	Words     *alphabet.Alphabet
	Tags      *alphabet.Alphabet
	Instances []*Instance
}

// New creates an empty corpus.
func New() *Corpus {
	return &Corpus{
		Words: alphabet.New(),
		Tags:  alphabet.New(),
	}
}

// Add interns a sentence given as parallel word and tag strings and appends it.
func (c *Corpus) Add(words, tags []string) *Instance {
	in := &Instance{
		Words: make([]int, len(words)),
		Tags:  make([]int, len(tags)),
	}
	for i, w := range words {
		in.Words[i] = c.Words.Add(w)
	}
	for i, t := range tags {
		in.Tags[i] = c.Tags.Add(t)
	}
	c.Instances = append(c.Instances, in)
	return in
}

// NumWordTypes returns the number of distinct word forms.
func (c *Corpus) NumWordTypes() int { return c.Words.Size() }

// NumTags returns the number of distinct coarse tags.
func (c *Corpus) NumTags() int { return c.Tags.Size() }

// WordName returns the surface form for a word id.
func (c *Corpus) WordName(id int) string { return c.Words.Name(id) }

// TagName returns the tag string for a tag id.
func (c *Corpus) TagName(id int) string { return c.Tags.Name(id) }

// NumTokens returns the total token count over all instances.
func (c *Corpus) NumTokens() int {
	n := 0
	for _, in := range c.Instances {
		n += in.Len()
	}
	return n
}
