// Package optimizer holds the peephole rewriters of the IR and assembly
// lists and the condition rewriting done on the typed tree.
package optimizer

import (
	"fmt"
	"io"
	"slices"
)

// Rule rewrites the window of s starting at i. Match returns how many
// items it consumes and their replacement, or n == 0 when it does not
// apply.
type Rule[T any] struct {
	Name  string
	Match func(s []T, i int) (n int, repl []T)
}

// Run applies rules until none matches. Rules are tried in order at each
// position and after every rewrite the scan starts over. A non-nil trace
// receives one line per rewrite.
func Run[T any](items []T, rules []Rule[T], trace io.Writer) []T {
	s := slices.Clone(items)
	for i := 0; i < len(s); {
		applied := false
		for _, r := range rules {
			n, repl := r.Match(s, i)
			if n == 0 {
				continue
			}
			if trace != nil {
				fmt.Fprintf(trace, "  %03d | %s\n", i, r.Name)
			}
			s = slices.Replace(s, i, i+n, repl...)
			applied = true
			break
		}
		if applied {
			i = 0
			continue
		}
		i++
	}
	return s
}

// at returns item i of s and whether it exists.
func at[T any](s []T, i int) (T, bool) {
	if i < 0 || i >= len(s) {
		var zero T
		return zero, false
	}
	return s[i], true
}
