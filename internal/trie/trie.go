// Package trie matches slash separated paths against a set of prefix
// patterns.
//
// Patterns are stored in an arena: nodes live in one slice and refer to
// their children by index. A pattern segment "*" matches any one path
// segment. A path matches when some pattern is a prefix of it, so a
// directory pattern also covers everything below it.
package trie

import (
	"path"
	"sort"
	"strings"
)

// Wildcard matches any single path segment.
const Wildcard = "*"

// NodeIndex represents the index of a trie node.
type NodeIndex int

// arena stores all trie nodes.
type arena struct {
	nodes []arenaNode
}

type arenaNode struct {
	// children maps a path segment to the index of its node.
	children map[string]NodeIndex
	// isEnd is set when a pattern ends at this node.
	isEnd bool
}

func newArena() *arena {
	a := &arena{nodes: make([]arenaNode, 0, 64)}
	a.newNode() // root
	return a
}

func (a *arena) newNode() NodeIndex {
	idx := NodeIndex(len(a.nodes))
	a.nodes = append(a.nodes, arenaNode{children: make(map[string]NodeIndex)})
	return idx
}

func (a *arena) insert(segments []string) {
	current := NodeIndex(0)
	for _, seg := range segments {
		childIdx, exists := a.nodes[current].children[seg]
		if !exists {
			childIdx = a.newNode()
			a.nodes[current].children[seg] = childIdx
		}
		current = childIdx
	}
	a.nodes[current].isEnd = true
}

// match reports whether a pattern below idx is a prefix of segments.
func (a *arena) match(idx NodeIndex, segments []string) bool {
	node := &a.nodes[idx]
	if node.isEnd {
		return true
	}
	if len(segments) == 0 {
		return false
	}
	if child, ok := node.children[segments[0]]; ok && a.match(child, segments[1:]) {
		return true
	}
	if child, ok := node.children[Wildcard]; ok && a.match(child, segments[1:]) {
		return true
	}
	return false
}

func (a *arena) string(idx NodeIndex) string {
	node := a.nodes[idx]
	var sb strings.Builder

	if node.isEnd {
		sb.WriteString("$")
	}

	keys := make([]string, 0, len(node.children))
	for key := range node.children {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteString("(")
		sb.WriteString(a.string(node.children[key]))
		sb.WriteString(")")
	}
	return sb.String()
}

// Trie is a set of path prefix patterns.
type Trie struct {
	arena    *arena
	patterns int
}

// New returns an empty Trie.
func New() *Trie {
	return &Trie{arena: newArena()}
}

// Split cleans p and returns its segments. The empty path and "." have no
// segments.
func Split(p string) []string {
	p = strings.Trim(path.Clean(strings.ReplaceAll(p, `\`, "/")), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// Insert adds a pattern such as "testdata" or "third_party/*/gen". Empty
// patterns are ignored.
func (t *Trie) Insert(pattern string) {
	segments := Split(pattern)
	if len(segments) == 0 {
		return
	}
	t.arena.insert(segments)
	t.patterns++
}

// Len returns the number of patterns inserted.
func (t *Trie) Len() int { return t.patterns }

// Match reports whether some pattern is a prefix of the path p.
func (t *Trie) Match(p string) bool {
	if t.patterns == 0 {
		return false
	}
	segments := Split(p)
	if len(segments) == 0 {
		return false
	}
	return t.arena.match(0, segments)
}

// String returns the patterns as nested segments, "$" marking where a
// pattern ends.
func (t *Trie) String() string {
	return t.arena.string(0)
}
