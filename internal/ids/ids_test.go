package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := New()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("err")
	require.True(t, strings.HasPrefix(id, "err_"))
	require.Len(t, id, len("err_")+27)
}
