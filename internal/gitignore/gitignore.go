// Package gitignore matches paths against gitignore-style patterns,
// following the syntax documented at https://git-scm.com/docs/gitignore:
// wildcards (*, ?, **), rooted patterns (/build), negation
// (!keep.log), directory-only patterns (build/), and nested ignore
// files scoped to a base directory.
//
// The crawler consults a Matcher per repository root so that files a
// project's own tooling ignores stay out of the index:
//
//	m := gitignore.New()
//	if err := m.AddFromFile("/repo/.gitignore", ""); err != nil { ... }
//	if err := m.AddFromFile("/repo/vendor/.gitignore", "vendor"); err != nil { ... }
//	ignored := m.Match("vendor/cache/blob.bin", false)
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher evaluates paths against an ordered list of compiled
// patterns. Later patterns win, which is how negation overrides
// earlier ignores. Safe for concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	patterns []compiled
}

// compiled is one parsed pattern line.
type compiled struct {
	source  string         // line as written, after escape handling
	re      *regexp.Regexp // anchored regex form
	negated bool           // line started with !
	dirOnly bool           // line ended with /
	rooted  bool           // line contained / (matches from the base, not anywhere)
	base    string         // directory the owning ignore file lives in, "" = root
}

// New returns an empty Matcher. With no patterns, nothing is ignored.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern adds one pattern line applying from the root.
func (m *Matcher) AddPattern(line string) {
	m.AddPatternWithBase(line, "")
}

// AddPatternWithBase adds one pattern line that only applies to paths
// under base. Blank lines and comments are ignored.
func (m *Matcher) AddPatternWithBase(line, base string) {
	p, ok := parseLine(line, base)
	if !ok {
		return
	}
	m.mu.Lock()
	m.patterns = append(m.patterns, p)
	m.mu.Unlock()
}

// AddFromFile loads every pattern line from an ignore file, scoping
// them to base (the ignore file's directory relative to the root).
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open gitignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPatternWithBase(scanner.Text(), base)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read gitignore file: %w", err)
	}
	return nil
}

// Match reports whether path should be ignored. Path separators are
// normalized, so callers may pass OS-native paths.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, p := range m.patterns {
		if p.matches(path, isDir) {
			ignored = !p.negated
		}
	}
	return ignored
}

// parseLine turns a raw ignore-file line into a compiled pattern.
// The second return is false for lines that carry no pattern.
func parseLine(line, base string) (compiled, bool) {
	// "\ " at the end keeps the space; note it before trimming.
	escapedTrailingSpace := strings.HasSuffix(line, `\ `)

	line = strings.TrimSpace(line)
	if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
		return compiled{}, false
	}

	p := compiled{source: line, base: base}

	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = strings.TrimPrefix(line, `\`)
		p.source = line
	case strings.HasPrefix(line, "!"):
		p.negated = true
		line = strings.TrimPrefix(line, "!")
	}

	if escapedTrailingSpace && strings.HasSuffix(line, `\`) {
		line = strings.TrimSuffix(line, `\`) + " "
	}

	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.rooted = true
		line = strings.TrimPrefix(line, "/")
	}
	// A separator anywhere in the pattern roots it: "doc/frotz" means
	// "/doc/frotz", not "**/doc/frotz".
	if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") && !strings.HasPrefix(line, "*") {
		p.rooted = true
	}

	p.re = regexp.MustCompile("^" + translate(line) + "$")
	return p, true
}

// matches evaluates one pattern against a normalized path.
func (p compiled) matches(path string, isDir bool) bool {
	// Patterns from a nested ignore file see paths relative to it.
	if p.base != "" {
		switch {
		case path == p.base:
			path = filepath.Base(path)
		case strings.HasPrefix(path, p.base+"/"):
			path = strings.TrimPrefix(path, p.base+"/")
		default:
			return false
		}
	}

	parts := strings.Split(path, "/")
	name := parts[len(parts)-1]

	if p.rooted {
		if p.re.MatchString(path) {
			if p.dirOnly {
				return isDir
			}
			return true
		}
		// A rooted directory pattern still covers everything inside
		// the directory it names.
		if p.dirOnly {
			for i := range parts[:len(parts)-1] {
				if p.re.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if p.dirOnly {
		// "temp/" matches a temp directory at any depth, and every
		// path below one.
		for i, part := range parts {
			if p.re.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if p.re.MatchString(name) || p.re.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if p.re.MatchString(part) {
			return true
		}
	}
	return false
}

// translate converts a gitignore glob into regex source.
func translate(pattern string) string {
	var out strings.Builder

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				// "**/" spans any number of directories, including none.
				out.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				// Trailing or slash-bounded "**" matches everything.
				out.WriteString(".*")
				i += 2
				continue
			}
			out.WriteString("[^/]*")
			i++
		case '?':
			out.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				out.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				out.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String()
}
