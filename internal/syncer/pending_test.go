package syncer

import (
	"testing"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingWritesHoldUntilDone(t *testing.T) {
	p := NewPendingWrites()
	p.Add("m1")

	assert.True(t, p.Hold(orders.ChangeBatch{ID: "b1", MutationID: "m1"}))
	assert.True(t, p.Hold(orders.ChangeBatch{ID: "b2", MutationID: "m1"}))
	assert.False(t, p.Hold(orders.ChangeBatch{ID: "b3", MutationID: "m2"}))
	assert.False(t, p.Hold(orders.ChangeBatch{ID: "b4"}))

	held := p.Done("m1")
	require.Len(t, held, 2)
	assert.Equal(t, "b1", held[0].ID)
	assert.Equal(t, "b2", held[1].ID)
	assert.False(t, p.Has("m1"))
	assert.Zero(t, p.Len())

	// late echo after the ack is applied normally
	assert.False(t, p.Hold(orders.ChangeBatch{ID: "b5", MutationID: "m1"}))
	assert.Nil(t, p.Done("m1"))
}
