package system

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Ordered(t *testing.T) {
	g := UUIDv7Generator{}
	prev := g.NewID()
	for i := 0; i < 1000; i++ {
		next := g.NewID()
		require.Less(t, prev, next)
		prev = next
	}

	id, err := uuid.Parse(prev)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestClock_UTC(t *testing.T) {
	assert.Equal(t, "UTC", Clock{}.Now().Location().String())
}
