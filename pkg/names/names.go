// Package names generates the short identifiers handed out by the rename
// passes.
package names

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultAlphabet is the lowercase latin alphabet: a..z, aa, ab, ...
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Iterator produces an infinite, deterministic sequence of distinct names.
// Reset returns it to the first name.
type Iterator interface {
	Reset()
	Next() string
}

// Factory returns a fresh Iterator positioned at the first name.
type Factory func() Iterator

// Sequence enumerates names in bijective base-k over its alphabet, so
// every string over the alphabet appears exactly once, shortest first.
type Sequence struct {
	alphabet []rune
	n        uint64
}

// NewSequence returns a Sequence over alphabet. Every rune must be a
// letter or underscore so generated names are valid identifiers.
func NewSequence(alphabet string) (*Sequence, error) {
	runes := []rune(alphabet)
	if len(runes) == 0 {
		return nil, fmt.Errorf("names: empty alphabet")
	}
	seen := make(map[rune]bool, len(runes))
	for _, r := range runes {
		if r != '_' && !unicode.IsLetter(r) {
			return nil, fmt.Errorf("names: alphabet rune %q is not a letter", r)
		}
		if seen[r] {
			return nil, fmt.Errorf("names: alphabet repeats %q", r)
		}
		seen[r] = true
	}
	return &Sequence{alphabet: runes}, nil
}

// Reset implements Iterator.
func (s *Sequence) Reset() { s.n = 0 }

// Next implements Iterator.
func (s *Sequence) Next() string {
	s.n++
	return s.format(s.n)
}

func (s *Sequence) format(n uint64) string {
	k := uint64(len(s.alphabet))
	var digits []rune
	for n > 0 {
		n--
		digits = append(digits, s.alphabet[n%k])
		n /= k
	}
	var b strings.Builder
	for i := len(digits) - 1; i >= 0; i-- {
		b.WriteRune(digits[i])
	}
	return b.String()
}

// Alphabet returns a Factory producing Sequences over alphabet. An empty
// alphabet selects DefaultAlphabet.
func Alphabet(alphabet string) (Factory, error) {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if _, err := NewSequence(alphabet); err != nil {
		return nil, err
	}
	return func() Iterator {
		s, _ := NewSequence(alphabet)
		return s
	}, nil
}

// Default is the Factory over DefaultAlphabet.
func Default() Iterator {
	s, _ := NewSequence(DefaultAlphabet)
	return s
}

// Policy decides whether a symbol that is not renamed still consumes a
// generated name in its scope.
type Policy int

const (
	// Dense hands out names only to symbols that are actually renamed.
	Dense Policy = iota
	// ConsumeOnSkip advances the iterator for every symbol in the scope,
	// leaving gaps where skipped symbols would have been.
	ConsumeOnSkip
)

func (p Policy) String() string {
	switch p {
	case Dense:
		return "dense"
	case ConsumeOnSkip:
		return "consume"
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// ParsePolicy parses "dense" or "consume". The empty string is Dense.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dense":
		return Dense, nil
	case "consume", "consume-on-skip":
		return ConsumeOnSkip, nil
	}
	return Dense, fmt.Errorf("names: unknown policy %q (want dense or consume)", s)
}
