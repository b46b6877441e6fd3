package clue

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a clue is not part of the catalog.
var ErrNotFound = errors.New("clue: not found")

// Reward is the payload revealed once a clue is solved.
type Reward struct {
	// Title is the headline shown above the reward.
	Title string `yaml:"title" json:"title"`
	// PhraseSoFar is the accumulated passphrase after this clue.
	PhraseSoFar string `yaml:"phrase_so_far" json:"phraseSoFar,omitempty"`
	// Body holds free-form reward lines.
	Body []string `yaml:"body" json:"body,omitempty"`
	// Heading replaces the default heading on the final clue.
	Heading string `yaml:"heading" json:"heading,omitempty"`
}

// Definition is the static configuration for one clue.
type Definition struct {
	Month   int      `yaml:"month"`
	Index   int      `yaml:"index"`
	Answers []string `yaml:"answers"`
	Reward  Reward   `yaml:"reward"`
	// Final marks the completion clue. Only the last clue may set it; the
	// catalog sets it on the last clue when omitted.
	Final bool `yaml:"final"`
}

// Key returns the definition's clue key.
func (d Definition) Key() Key {
	return Key{Month: d.Month, Index: d.Index}
}

// Catalog is an immutable, totally ordered clue sequence.
type Catalog struct {
	ordered []Definition
	byKey   map[Key]int
}

type catalogFile struct {
	Clues []Definition `yaml:"clues"`
}

// New validates and orders the provided definitions.
//
// Within each month indices must run contiguously from 1. Every clue needs
// at least one non-blank accepted answer.
func New(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("clue: catalog requires at least one clue")
	}

	ordered := make([]Definition, len(defs))
	copy(ordered, defs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Key().Less(ordered[j].Key())
	})

	byKey := make(map[Key]int, len(ordered))
	for i, d := range ordered {
		k := d.Key()
		if !k.Valid() {
			return nil, fmt.Errorf("clue: %s must have positive month and index", k)
		}
		if _, dup := byKey[k]; dup {
			return nil, fmt.Errorf("clue: duplicate definition for %s", k)
		}
		if k.Index > 1 {
			if _, ok := byKey[Key{Month: k.Month, Index: k.Index - 1}]; !ok {
				return nil, fmt.Errorf("clue: %s has no predecessor in month %d", k, k.Month)
			}
		}
		if !hasAnswer(d.Answers) {
			return nil, fmt.Errorf("clue: %s requires at least one accepted answer", k)
		}
		if d.Final && i != len(ordered)-1 {
			return nil, fmt.Errorf("clue: only the last clue may be final, got %s", k)
		}

		d.Answers = append([]string(nil), d.Answers...)
		d.Reward.Body = append([]string(nil), d.Reward.Body...)
		ordered[i] = d
		byKey[k] = i
	}
	ordered[len(ordered)-1].Final = true

	return &Catalog{ordered: ordered, byKey: byKey}, nil
}

// LoadFile reads a YAML catalog of the form:
//
//	clues:
//	  - month: 1
//	    index: 1
//	    answers: ["first phrase"]
//	    reward: {title: "REWARD", phrase_so_far: "..."}
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clue: failed to read catalog %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("clue: invalid catalog YAML: %w", err)
	}
	return New(file.Clues)
}

// Lookup returns the definition for key.
func (c *Catalog) Lookup(key Key) (Definition, error) {
	i, ok := c.byKey[key]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return cloneDefinition(c.ordered[i]), nil
}

// Contains reports whether key is part of the catalog.
func (c *Catalog) Contains(key Key) bool {
	_, ok := c.byKey[key]
	return ok
}

// Predecessor returns the clue gating key. Index 1 of every month is
// always visible and has none.
func (c *Catalog) Predecessor(key Key) (Definition, bool) {
	prev, ok := key.Previous()
	if !ok {
		return Definition{}, false
	}
	i, ok := c.byKey[prev]
	if !ok {
		return Definition{}, false
	}
	return cloneDefinition(c.ordered[i]), true
}

// Successor returns the next clue in the total order, if any.
func (c *Catalog) Successor(key Key) (Definition, bool) {
	i, ok := c.byKey[key]
	if !ok || i+1 >= len(c.ordered) {
		return Definition{}, false
	}
	return cloneDefinition(c.ordered[i+1]), true
}

// Last returns the final clue in the sequence.
func (c *Catalog) Last() Definition {
	return cloneDefinition(c.ordered[len(c.ordered)-1])
}

// All returns every definition in order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.ordered))
	for i, d := range c.ordered {
		out[i] = cloneDefinition(d)
	}
	return out
}

// Len returns the number of clues.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

func hasAnswer(answers []string) bool {
	for _, a := range answers {
		if strings.TrimSpace(a) != "" {
			return true
		}
	}
	return false
}

func cloneDefinition(d Definition) Definition {
	out := d
	out.Answers = append([]string(nil), d.Answers...)
	if d.Reward.Body != nil {
		out.Reward.Body = append([]string(nil), d.Reward.Body...)
	}
	return out
}
