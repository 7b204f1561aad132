package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCAIPIdentifiers(t *testing.T) {
	b, ok := Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "eip155:1", b.CAIP2())
	assert.Equal(t, "eip155:1:0xAbC", b.AccountID("0xAbC"))

	_, ok = Lookup(424242)
	assert.False(t, ok)
}

func TestMappingIsConsistent(t *testing.T) {
	ids := IDs()
	require.NotEmpty(t, ids)
	for _, id := range ids {
		b := Mapping[id]
		assert.Equal(t, id, b.ID)
		assert.NotEmpty(t, b.IDHex)
	}
}
