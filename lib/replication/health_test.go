package replication

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	peerA = "http://node-a:8080"
	peerB = "http://node-b:8080"
)

func TestHealthMonitor_CachesVerdicts(t *testing.T) {
	clock := newFakeClock()
	peers := newFakePeers(map[string]peerBehaviour{peerA: alwaysCode(http.StatusOK)})
	h := NewHealthMonitor([]string{peerA}, peers, HealthOptions{Now: clock.Now})
	ctx := context.Background()

	assert.True(t, h.CheckHealth(ctx, peerA, true))
	assert.True(t, h.CheckHealth(ctx, peerA, true))
	assert.Equal(t, 1, peers.Calls(peerA), "second check must be served from the cache")

	clock.Advance(DefaultHealthTTL)
	assert.True(t, h.CheckHealth(ctx, peerA, true))
	assert.Equal(t, 2, peers.Calls(peerA), "expired verdict must trigger a new probe")

	assert.True(t, h.CheckHealth(ctx, peerA, false))
	assert.Equal(t, 3, peers.Calls(peerA), "useCache=false must always probe")
}

func TestHealthMonitor_FailuresAreCached(t *testing.T) {
	clock := newFakeClock()
	peers := newFakePeers(map[string]peerBehaviour{
		peerA: unreachable(),
		peerB: alwaysCode(http.StatusServiceUnavailable),
	})
	h := NewHealthMonitor([]string{peerA, peerB}, peers, HealthOptions{Now: clock.Now})
	ctx := context.Background()

	assert.False(t, h.CheckHealth(ctx, peerA, true))
	assert.False(t, h.CheckHealth(ctx, peerB, true))
	assert.False(t, h.CheckHealth(ctx, peerA, true))
	assert.Equal(t, 1, peers.Calls(peerA))
	assert.Empty(t, h.HealthyNodes(ctx))
}

func TestHealthMonitor_MarkUnhealthy(t *testing.T) {
	clock := newFakeClock()
	peers := newFakePeers(map[string]peerBehaviour{peerA: alwaysCode(http.StatusOK)})
	h := NewHealthMonitor([]string{peerA}, peers, HealthOptions{Now: clock.Now})
	ctx := context.Background()

	h.MarkUnhealthy(peerA)
	assert.False(t, h.CheckHealth(ctx, peerA, true))
	assert.Equal(t, 0, peers.Calls(peerA), "marked peer must not be probed within the ttl")

	clock.Advance(DefaultHealthTTL + time.Second)
	assert.Equal(t, []string{peerA}, h.HealthyNodes(ctx))
}

func TestHealthMonitor_ClusterStatus(t *testing.T) {
	peers := newFakePeers(map[string]peerBehaviour{
		peerA: alwaysCode(http.StatusOK),
		peerB: unreachable(),
	})
	h := NewHealthMonitor([]string{peerA, peerB}, peers, HealthOptions{FanOut: FanOutConcurrent})

	// a cached healthy verdict must not leak into the status
	h.store(peerB, true)

	status := h.ClusterStatus(context.Background())
	assert.True(t, status.ReplicationEnabled)
	assert.Equal(t, 3, status.TotalNodes)
	assert.Equal(t, 2, status.HealthyNodes)
	assert.Equal(t, 1, status.UnhealthyNodes)
	assert.Equal(t, 2, status.RequiredForQuorum)
	assert.True(t, status.HasQuorum)
	assert.True(t, status.CanAcceptWrites)
	assert.True(t, status.AutomaticFailoverEnabled)
	assert.Equal(t, DefaultAttempts, status.RetryAttempts)
	assert.Equal(t, FanOutConcurrent, status.FanOut)
	require.Len(t, status.Nodes, 2)
	assert.Equal(t, NodeStatus{URL: peerA, Healthy: true}, status.Nodes[0])
	assert.Equal(t, NodeStatus{URL: peerB, Healthy: false}, status.Nodes[1])
}

func TestHealthMonitor_ClusterStatusSingleNode(t *testing.T) {
	h := NewHealthMonitor(nil, newFakePeers(nil), HealthOptions{})
	status := h.ClusterStatus(context.Background())

	assert.False(t, status.ReplicationEnabled)
	assert.Equal(t, 1, status.TotalNodes)
	assert.Equal(t, 1, status.HealthyNodes)
	assert.Equal(t, 1, status.RequiredForQuorum)
	assert.True(t, status.CanAcceptWrites)
	assert.Empty(t, status.Nodes)
}
