package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	fieldSeparator = "\t"
	minFields      = 5
	formField      = 1
	cposField      = 3
	posField       = 4
)

// ReadOptions controls how CoNLL rows become instances.
type ReadOptions struct {
	// MaxLength drops sentences longer than this many tokens. 0 keeps all.
	MaxLength int
	// LowerCase folds word forms to lower case before interning.
	LowerCase bool
	// FineTags uses the POSTAG/XPOS column instead of CPOSTAG/UPOS.
	FineTags bool
}

// ReadFile reads a CoNLL-X or CoNLL-U file into a new corpus.
func ReadFile(path string, opts ReadOptions) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()
	c := New()
	if err := Read(f, c, opts); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Read appends the sentences in r to c. Sentences are separated by blank
// lines; "#" comment lines and CoNLL-U multiword ("1-2") or empty-node
// ("1.1") rows are skipped.
func Read(r io.Reader, c *Corpus, opts ReadOptions) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var words, tags []string
	flush := func() {
		if len(words) == 0 {
			return
		}
		if opts.MaxLength == 0 || len(words) <= opts.MaxLength {
			c.Add(words, tags)
		}
		words, tags = nil, nil
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, fieldSeparator)
		if len(fields) < minFields {
			return fmt.Errorf("line %d: expected at least %d tab-separated fields, got %d", lineNo, minFields, len(fields))
		}
		if strings.ContainsAny(fields[0], "-.") {
			continue
		}
		form := fields[formField]
		if form == "" || form == "_" {
			return fmt.Errorf("line %d: empty FORM field", lineNo)
		}
		if opts.LowerCase {
			form = strings.ToLower(form)
		}
		tag := fields[cposField]
		if opts.FineTags {
			tag = fields[posField]
		}
		if tag == "" || tag == "_" {
			return fmt.Errorf("line %d: empty tag field", lineNo)
		}
		words = append(words, form)
		tags = append(tags, tag)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}
	flush()
	if len(c.Instances) == 0 {
		return ErrEmptyCorpus
	}
	return nil
}
