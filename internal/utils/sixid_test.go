package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSixID_String(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s := NewSixID().String()
		require.Len(t, s, 10)
		for _, r := range s {
			assert.True(t, strings.ContainsRune(crockfordAlphabet, r), s)
		}
		seen[s] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestSixID_StringIsStable(t *testing.T) {
	assert.Equal(t, "0000000000", SixID{}.String())
	id := SixID{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}
	assert.Equal(t, id.String(), id.String())
	assert.NotEqual(t, id.String(), SixID{0xde, 0xad, 0xbe, 0xef, 0x01, 0x03}.String())
}

func TestNewSixIDHook(t *testing.T) {
	defer func() { NewSixIDHook = nil }()
	want := SixID{9, 9, 9, 9, 9, 9}
	NewSixIDHook = func() (SixID, bool) { return want, true }
	assert.Equal(t, want, NewSixID())
}
