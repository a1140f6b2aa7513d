// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package cache

import (
	"strings"
	"sync"
)

// AhoCorasick implements the Aho-Corasick string matching algorithm.
// It finds all occurrences of multiple patterns in a text in
// O(n + m + z) time, where:
//   - n = length of text
//   - m = total length of all patterns
//   - z = number of matches
//
// This is much faster than checking each pattern individually. The
// intrusion scanner and the fraud keyword heuristics both match their
// signature classes through one automaton built at construction.
//
// Example:
//
//	ac := NewAhoCorasick()
//	ac.AddPattern("union select", "sql_injection")
//	ac.AddPattern("<script", "script_injection")
//	ac.Build()
//
//	matches := ac.Search("id=1 UNION SELECT password")
type AhoCorasick struct {
	mu            sync.RWMutex
	root          *acNode
	patterns      []Pattern
	built         bool
	caseSensitive bool
}

// acNode represents a node in the automaton.
type acNode struct {
	children map[rune]*acNode
	failure  *acNode // failure link for when a match fails
	output   []int   // indices of patterns ending at this node
	depth    int
}

// Pattern is a search pattern with associated data.
type Pattern struct {
	Text string
	Data any // e.g. signature class or severity
}

// Match is one pattern occurrence in the text.
type Match struct {
	Pattern  string
	Data     any
	Position int // start position in the text
}

// NewAhoCorasick creates a case-insensitive automaton.
func NewAhoCorasick() *AhoCorasick {
	return &AhoCorasick{
		root:          newACNode(0),
		caseSensitive: false,
	}
}

// newACNode creates a new automaton node.
func newACNode(depth int) *acNode {
	return &acNode{
		children: make(map[rune]*acNode),
		output:   make([]int, 0),
		depth:    depth,
	}
}

// AddPattern adds a pattern to the automaton. Must be called before
// Build().
func (ac *AhoCorasick) AddPattern(pattern string, data any) {
	if pattern == "" {
		return
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.built {
		ac.built = false // need to rebuild
	}

	ac.patterns = append(ac.patterns, Pattern{Text: pattern, Data: data})
}

// AddPatterns adds multiple patterns sharing the same data value.
func (ac *AhoCorasick) AddPatterns(patterns []string, data any) {
	for _, p := range patterns {
		ac.AddPattern(p, data)
	}
}

// Build constructs the automaton. Must be called after adding patterns
// and before searching.
func (ac *AhoCorasick) Build() {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.built {
		return
	}

	ac.root = newACNode(0)

	for i, p := range ac.patterns {
		ac.insertPattern(i, p.Text)
	}

	ac.buildFailureLinks()

	ac.built = true
}

// insertPattern inserts a pattern into the trie.
func (ac *AhoCorasick) insertPattern(index int, pattern string) {
	node := ac.root

	text := pattern
	if !ac.caseSensitive {
		text = strings.ToLower(pattern)
	}

	for _, ch := range text {
		if node.children[ch] == nil {
			node.children[ch] = newACNode(node.depth + 1)
		}
		node = node.children[ch]
	}

	node.output = append(node.output, index)
}

// buildFailureLinks builds failure links using BFS.
func (ac *AhoCorasick) buildFailureLinks() {
	// Root's children fail to root
	queue := make([]*acNode, 0)
	for _, child := range ac.root.children {
		child.failure = ac.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			// Follow failure links to find the longest proper suffix
			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}

			if fail == nil {
				child.failure = ac.root
			} else {
				child.failure = fail.children[ch]
				// Merge output from failure link
				child.output = append(child.output, child.failure.output...)
			}
		}
	}
}

// Search finds all pattern matches in the text.
func (ac *AhoCorasick) Search(text string) []Match {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built || len(ac.patterns) == 0 {
		return nil
	}

	searchText := text
	if !ac.caseSensitive {
		searchText = strings.ToLower(text)
	}

	var matches []Match
	node := ac.root

	for i, ch := range searchText {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}

		if node == nil {
			node = ac.root
			continue
		}

		node = node.children[ch]

		for _, patternIdx := range node.output {
			pattern := ac.patterns[patternIdx]
			matches = append(matches, Match{
				Pattern:  pattern.Text,
				Data:     pattern.Data,
				Position: i - len(pattern.Text) + 1,
			})
		}
	}

	return matches
}

// SearchFirst finds the first pattern match in the text. More
// efficient than Search when one match is enough.
func (ac *AhoCorasick) SearchFirst(text string) (Match, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built || len(ac.patterns) == 0 {
		return Match{}, false
	}

	searchText := text
	if !ac.caseSensitive {
		searchText = strings.ToLower(text)
	}

	node := ac.root

	for i, ch := range searchText {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}

		if node == nil {
			node = ac.root
			continue
		}

		node = node.children[ch]

		if len(node.output) > 0 {
			patternIdx := node.output[0]
			pattern := ac.patterns[patternIdx]
			return Match{
				Pattern:  pattern.Text,
				Data:     pattern.Data,
				Position: i - len(pattern.Text) + 1,
			}, true
		}
	}

	return Match{}, false
}

// Contains checks if any pattern matches in the text.
func (ac *AhoCorasick) Contains(text string) bool {
	_, found := ac.SearchFirst(text)
	return found
}

// PatternCount returns the number of patterns in the automaton.
func (ac *AhoCorasick) PatternCount() int {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return len(ac.patterns)
}

// PatternMatcher is a prebuilt automaton for a fixed pattern set.
type PatternMatcher struct {
	ac *AhoCorasick
}

// NewPatternMatcher creates a matcher from pattern->data pairs.
// The automaton is built immediately.
func NewPatternMatcher(patterns map[string]any) *PatternMatcher {
	ac := NewAhoCorasick()
	for pattern, data := range patterns {
		ac.AddPattern(pattern, data)
	}
	ac.Build()

	return &PatternMatcher{ac: ac}
}

// NewPatternMatcherFromSlice creates a matcher where all patterns
// share the same data value.
func NewPatternMatcherFromSlice(patterns []string, data any) *PatternMatcher {
	ac := NewAhoCorasick()
	ac.AddPatterns(patterns, data)
	ac.Build()

	return &PatternMatcher{ac: ac}
}

// Match returns all matches in the text.
func (pm *PatternMatcher) Match(text string) []Match {
	return pm.ac.Search(text)
}

// MatchFirst returns the first match in the text.
func (pm *PatternMatcher) MatchFirst(text string) (Match, bool) {
	return pm.ac.SearchFirst(text)
}

// Contains returns true if any pattern matches.
func (pm *PatternMatcher) Contains(text string) bool {
	return pm.ac.Contains(text)
}
