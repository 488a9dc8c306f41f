package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	id := ID()
	assert.True(t, IsValidID(id))
	assert.NotEqual(t, id, ID())

	assert.False(t, IsValidID("lobby"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID("{"+id+"}"))
	assert.True(t, IsValidID(strings.ToUpper(id)))
}

func TestConnectionID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id, err := ConnectionID()
		require.NoError(t, err)
		require.True(t, IsValidConnectionID(id), id)
		require.False(t, seen[id])
		seen[id] = true
	}

	assert.False(t, IsValidConnectionID("conn_short"))
	assert.False(t, IsValidConnectionID("sock_0123456789abcdef"))
	assert.False(t, IsValidConnectionID("conn_0123456789abcde!"))
}
