package constraints

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var commentPattern = regexp.MustCompile(`#.*`)

// ReadAllowListFile reads the edges that must never be projected. See
// ReadAllowList for the format.
func ReadAllowListFile(path string, e *Enumerator, logger *slog.Logger) (map[int]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open allow list: %w", err)
	}
	defer func() { _ = f.Close() }()
	groups, err := ReadAllowList(f, e, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return groups, nil
}

// ReadAllowList parses lines of "<parent> <child>" surface pairs; "#"
// starts a comment and blank lines are skipped. Each pair exempts both its
// left and right edge groups. Pairs naming edges that were never observed
// are logged and otherwise ignored.
func ReadAllowList(r io.Reader, e *Enumerator, logger *slog.Logger) (map[int]struct{}, error) {
	if logger == nil {
		logger = slog.Default()
	}
	groups := make(map[int]struct{})
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(commentPattern.ReplaceAllString(scanner.Text(), ""))
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("allow list line %d: want \"<parent> <child>\", got %q", lineNo, line)
		}
		parent, child := fields[0], fields[1]
		for _, dir := range []Direction{Left, Right} {
			g, ok := e.LookupEdgeGroup(child, parent, dir)
			if !ok {
				logger.Warn("Allow-listed edge not observed in corpus", "parent", parent, "child", child, "direction", dir)
				continue
			}
			groups[g] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read allow list: %w", err)
	}
	return groups, nil
}
