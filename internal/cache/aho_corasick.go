// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package cache

import "strings"

// acNode is a state in the Aho-Corasick automaton.
type acNode struct {
	children map[byte]*acNode
	fail     *acNode
	outputs  []acOutput
}

// acOutput marks a pattern ending at a node.
type acOutput struct {
	pattern string
	data    any
}

// Match is a single pattern occurrence found in a search.
type Match struct {
	// Pattern is the matched pattern as registered.
	Pattern string

	// Data is the value attached when the pattern was added.
	Data any

	// Position is the byte offset where the match ends.
	Position int
}

// AhoCorasick matches many patterns against a text in a single pass. Add
// all patterns, call Build once, then Search any number of times. Search
// is safe for concurrent use after Build; AddPattern and Build are not.
type AhoCorasick struct {
	root          *acNode
	built         bool
	caseSensitive bool
	patternCount  int
}

// NewAhoCorasick creates a case-insensitive matcher.
func NewAhoCorasick() *AhoCorasick {
	return &AhoCorasick{
		root: &acNode{children: make(map[byte]*acNode)},
	}
}

// NewAhoCorasickCaseSensitive creates a case-sensitive matcher.
func NewAhoCorasickCaseSensitive() *AhoCorasick {
	ac := NewAhoCorasick()
	ac.caseSensitive = true
	return ac
}

// AddPattern registers a pattern with an attached value returned on match.
// Must be called before Build.
func (ac *AhoCorasick) AddPattern(pattern string, data any) {
	if pattern == "" || ac.built {
		return
	}
	if !ac.caseSensitive {
		pattern = strings.ToLower(pattern)
	}

	node := ac.root
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		child, ok := node.children[c]
		if !ok {
			child = &acNode{children: make(map[byte]*acNode)}
			node.children[c] = child
		}
		node = child
	}
	node.outputs = append(node.outputs, acOutput{pattern: pattern, data: data})
	ac.patternCount++
}

// AddPatterns registers multiple patterns sharing one attached value.
func (ac *AhoCorasick) AddPatterns(patterns []string, data any) {
	for _, pattern := range patterns {
		ac.AddPattern(pattern, data)
	}
}

// Build computes failure links breadth-first. Call once after all patterns
// are added.
func (ac *AhoCorasick) Build() {
	if ac.built {
		return
	}

	queue := make([]*acNode, 0, len(ac.root.children))
	for _, child := range ac.root.children {
		child.fail = ac.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for c, child := range node.children {
			queue = append(queue, child)

			fail := node.fail
			for fail != nil {
				if next, ok := fail.children[c]; ok {
					child.fail = next
					break
				}
				fail = fail.fail
			}
			if child.fail == nil {
				child.fail = ac.root
			}
			child.outputs = append(child.outputs, child.fail.outputs...)
		}
	}

	ac.built = true
}

// Search returns every pattern occurrence in text, including overlaps.
func (ac *AhoCorasick) Search(text string) []Match {
	if !ac.built || ac.patternCount == 0 {
		return nil
	}
	if !ac.caseSensitive {
		text = strings.ToLower(text)
	}

	var matches []Match
	node := ac.root
	for i := 0; i < len(text); i++ {
		c := text[i]
		for node != ac.root {
			if _, ok := node.children[c]; ok {
				break
			}
			node = node.fail
		}
		if next, ok := node.children[c]; ok {
			node = next
		}

		for _, out := range node.outputs {
			matches = append(matches, Match{
				Pattern:  out.pattern,
				Data:     out.data,
				Position: i + 1 - len(out.pattern),
			})
		}
	}
	return matches
}

// Contains reports whether any pattern occurs in text.
func (ac *AhoCorasick) Contains(text string) bool {
	if !ac.built || ac.patternCount == 0 {
		return false
	}
	if !ac.caseSensitive {
		text = strings.ToLower(text)
	}

	node := ac.root
	for i := 0; i < len(text); i++ {
		c := text[i]
		for node != ac.root {
			if _, ok := node.children[c]; ok {
				break
			}
			node = node.fail
		}
		if next, ok := node.children[c]; ok {
			node = next
		}
		if len(node.outputs) > 0 {
			return true
		}
	}
	return false
}

// PatternCount returns the number of registered patterns.
func (ac *AhoCorasick) PatternCount() int {
	return ac.patternCount
}
