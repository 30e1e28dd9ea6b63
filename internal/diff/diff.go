// Package diff summarizes how a file changed, using
// github.com/pmezard/go-difflib/difflib for classic unified output.
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines in unified hunks
const DefaultContext = 3

// Stat counts changed lines
type Stat struct {
	Added   int
	Removed int
}

// String renders the stat as "+3/-1"
func (s Stat) String() string {
	return fmt.Sprintf("+%d/-%d", s.Added, s.Removed)
}

// Empty reports whether nothing changed
func (s Stat) Empty() bool {
	return s.Added == 0 && s.Removed == 0
}

// Unified produces a unified patch for a↦b
func Unified(aName, bName string, a, b []byte) (string, error) {
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  DefaultContext,
	}
	return difflib.GetUnifiedDiffString(u)
}

// Summarize counts lines inserted and deleted between a and b
func Summarize(a, b []byte) Stat {
	m := difflib.NewMatcher(splitLinesKeepNL(string(a)), splitLinesKeepNL(string(b)))
	var s Stat
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			s.Removed += op.I2 - op.I1
			s.Added += op.J2 - op.J1
		case 'd':
			s.Removed += op.I2 - op.I1
		case 'i':
			s.Added += op.J2 - op.J1
		}
	}
	return s
}

// splitLinesKeepNL keeps the trailing "\n" on each element, which produces
// better unified hunks
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
