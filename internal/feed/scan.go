package feed

import (
	"regexp"
	"strings"
	"sync"
)

// blockPattern matches one top-level entity: from a line opening with
// "entity {" to the first closing brace standing alone at column 0.
var blockPattern = regexp.MustCompile(`(?ms)^[ \t]*entity \{[ \t]*$(.*?)^\}[ \t]*$`)

// Blocks splits a text dump into entity bodies.
func Blocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	matches := blockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, m[1])
	}
	return blocks
}

// section returns the body of the first "name { ... }" in s, brace-balanced
// and ignoring braces inside quoted strings.
func section(s, name string) (string, bool) {
	all := sections(s, name, 1)
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}

// sections returns up to limit bodies of "name { ... }" in s; limit < 0 means all.
func sections(s, name string, limit int) []string {
	var out []string
	re := openPattern(name)
	offset := 0
	for limit < 0 || len(out) < limit {
		loc := re.FindStringIndex(s[offset:])
		if loc == nil {
			break
		}
		start := offset + loc[1]
		end, ok := matchBrace(s, start)
		if !ok {
			break
		}
		out = append(out, s[start:end])
		offset = end + 1
	}
	return out
}

// matchBrace returns the index of the brace closing the block whose body
// starts at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 1
	inQuotes := false
	for i := start; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && inQuotes:
			i++
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// topLevel returns the lines of s that are not nested in any sub-block.
func topLevel(s string) string {
	var b strings.Builder
	depth := 0
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inQuotes:
			if depth == 0 {
				b.WriteByte(c)
				if i+1 < len(s) {
					b.WriteByte(s[i+1])
				}
			}
			i++
			continue
		case c == '"':
			inQuotes = !inQuotes
		case !inQuotes && c == '{':
			depth++
			continue
		case !inQuotes && c == '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

var (
	patternMu    sync.Mutex
	openPatterns = map[string]*regexp.Regexp{}
	strPatterns  = map[string]*regexp.Regexp{}
	rawPatterns  = map[string]*regexp.Regexp{}
)

func cached(m map[string]*regexp.Regexp, key, expr string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := m[key]; ok {
		return re
	}
	re := regexp.MustCompile(expr)
	m[key] = re
	return re
}

func openPattern(name string) *regexp.Regexp {
	return cached(openPatterns, name, `(?m)(?:^|[\s{])`+regexp.QuoteMeta(name)+`\s*\{`)
}

func stringPattern(name string) *regexp.Regexp {
	return cached(strPatterns, name, `(?m)^\s*`+regexp.QuoteMeta(name)+`:\s*"((?:[^"\\]|\\.)*)"`)
}

func rawPattern(name string) *regexp.Regexp {
	return cached(rawPatterns, name, `(?m)^\s*`+regexp.QuoteMeta(name)+`:\s*"?([^"\s]+)"?`)
}

// stringValue returns the first quoted value of "name: ..." in s.
func stringValue(s, name string) (string, bool) {
	m := stringPattern(name).FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// stringValues returns every quoted value of "name: ..." in s, in order.
func stringValues(s, name string) []string {
	matches := stringPattern(name).FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// rawValue returns the first bare or quoted scalar of "name: ..." in s.
func rawValue(s, name string) (string, bool) {
	m := rawPattern(name).FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// unique drops empty and repeated values, keeping first occurrences in order.
func unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
