package api

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterPoolSweepsIdleClients(t *testing.T) {
	p := newLimiterPool(0.001, 2)
	p.sweepAt = 3

	busy := p.get("busy")
	require.True(t, busy.Allow())
	p.get("idle-1")
	p.get("idle-2")
	require.Len(t, p.m, 3)

	p.get("new")
	assert.Len(t, p.m, 2)
	assert.Contains(t, p.m, "busy")
	assert.Contains(t, p.m, "new")
	assert.Same(t, busy, p.get("busy"), "a drained bucket must survive the sweep")
}

func TestLimiterPoolStaysBounded(t *testing.T) {
	p := newLimiterPool(0.001, 1)
	p.sweepAt = 8
	for i := 0; i < 100; i++ {
		p.get(fmt.Sprintf("10.0.0.%d", i))
	}
	assert.LessOrEqual(t, len(p.m), p.sweepAt)
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("POST", "/ingest", nil)
	r.RemoteAddr = "192.0.2.7:5123"
	assert.Equal(t, "192.0.2.7", clientKey(r))
	r.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", clientKey(r))
}
