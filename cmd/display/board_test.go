package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/ariefcatur/go-realtime-shop/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBoard(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	r := syncer.NewReplica(nil)
	r.Load(orders.Snapshot{
		Shop: orders.Shop{ID: "s1", Name: "Kopi", Status: orders.ShopPauseOrdering, EmergencyMessage: "out of milk"},
		Orders: []orders.Order{
			{ID: "a", ShopID: "s1", Index: 1, Status: orders.OrderIdle, CreatedAt: now.Add(-time.Minute), CompleteAt: now.Add(90 * time.Second), DelaySeconds: 30},
			{ID: "b", ShopID: "s1", Index: 2, Status: orders.OrderCompleted, CreatedAt: now, CompleteAt: now},
			{ID: "c", ShopID: "s1", Index: 3, Status: orders.OrderReceived, CreatedAt: now, CompleteAt: now},
		},
		Day:     now.Truncate(24 * time.Hour),
		TakenAt: now,
	})

	var buf bytes.Buffer
	render(&buf, r.State(), now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "== Kopi (pause_ordering) ==", lines[0])
	assert.Equal(t, "! out of milk", lines[1])
	assert.Contains(t, lines[2], "#2")
	assert.Contains(t, lines[2], "ready")
	assert.Contains(t, lines[3], "#1")
	assert.Contains(t, lines[3], "2:00 (+30s)")
}

func TestRenderEmptyBoard(t *testing.T) {
	r := syncer.NewReplica(nil)
	r.Load(orders.Snapshot{Shop: orders.Shop{ID: "s1", Status: orders.ShopActive}})

	var buf bytes.Buffer
	render(&buf, r.State(), time.Now())
	assert.Equal(t, "== s1 (active) ==\nno open orders\n", buf.String())
}
