package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestHasherDistinguishesMarkup(t *testing.T) {
	t.Parallel()

	h := NewTruncated(16)
	a, err := h.Hash([]byte("<article>a</article>"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("<article>b</article>"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewTruncated(t *testing.T) {
	t.Parallel()

	// Page body "a" as archived under keejob/<day>/page-001-ca978112ca1bbdca.html.
	full := "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"
	tests := []struct {
		name   string
		length int
		want   string
	}{
		{name: "archive prefix", length: 16, want: full[:16]},
		{name: "single digit", length: 1, want: "c"},
		{name: "exact length", length: 64, want: full},
		{name: "zero keeps full", length: 0, want: full},
		{name: "negative keeps full", length: -3, want: full},
		{name: "too long keeps full", length: 100, want: full},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewTruncated(tt.length).Hash([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
