package flamegraph

import (
	"fmt"
	"strconv"
	"strings"
)

// BuildTrie parses folded-stack lines ("frame1;frame2;...;frameN count")
// into a Trie, the first step of §4.H's algorithm.
func BuildTrie(lines []string) (*Trie, error) {
	trie := NewTrie()
	for i, line := range lines {
		line = strings.TrimRight(line, "\n")
		if line == "" {
			continue
		}
		sp := strings.LastIndex(line, " ")
		if sp < 0 {
			return nil, fmt.Errorf("flamegraph: line %d missing count field: %q", i, line)
		}
		count, err := strconv.ParseUint(line[sp+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("flamegraph: line %d has invalid count: %w", i, err)
		}
		stack := line[:sp]
		var frames []string
		if stack != "" {
			frames = strings.Split(stack, ";")
		}
		trie.Insert(frames, count)
	}
	return trie, nil
}
