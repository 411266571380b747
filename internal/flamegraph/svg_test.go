package flamegraph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDeterministicOutput guards §8 property 5: two renders of the same
// input and config produce byte-identical SVG, scenario S5's "a;b;c
// 10\na;b;d 20\n" input and exact rect count.
func TestDeterministicOutput(t *testing.T) {
	lines := []string{"a;b;c 10", "a;b;d 20"}
	cfg := DefaultConfig()

	var buf1, buf2 bytes.Buffer
	require.NoError(t, Render(&buf1, lines, cfg))
	require.NoError(t, Render(&buf2, lines, cfg))

	require.Equal(t, buf1.String(), buf2.String())
	require.Equal(t, 4, strings.Count(buf1.String(), `class="func_g"`))
}

func TestRandomModeBreaksDeterminismAcrossSeeds(t *testing.T) {
	lines := []string{"a;b;c 10", "a;b;d 20"}
	cfg := DefaultConfig()
	cfg.Random = true
	cfg.RandomSeed = 1

	var buf1 bytes.Buffer
	require.NoError(t, Render(&buf1, lines, cfg))

	cfg.RandomSeed = 2
	var buf2 bytes.Buffer
	require.NoError(t, Render(&buf2, lines, cfg))

	require.NotEqual(t, buf1.String(), buf2.String())
}

func TestBuildTrieTotals(t *testing.T) {
	trie, err := BuildTrie([]string{"a;b;c 10", "a;b;d 20"})
	require.NoError(t, err)
	require.Equal(t, uint64(30), trie.Total())
}

func TestBuildTrieRejectsMissingCount(t *testing.T) {
	_, err := BuildTrie([]string{"a;b;c"})
	require.Error(t, err)
}
