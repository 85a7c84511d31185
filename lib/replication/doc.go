// Package replication propagates committed writes of a node to its peers and
// tracks the health of those peers.
//
// Every node of an rKV cluster is configured with the base URLs of all other
// nodes (its peers). There is no leader: whichever node receives a client write
// commits it locally, then offers it to every peer. A write is acknowledged to
// the client only if a strict majority of the cluster applied it (local node
// included), see RequiredReplicas:
//
//	peers  cluster  required
//	0      1        1
//	1      2        2
//	2      3        2
//	4      5        3
//
// # Coordinator
//
// NewCoordinator returns an IReplicator. For every peer it performs up to
// Attempts tries (default 3) with a constant delay between tries (default
// 500ms, cenkalti/backoff/v4), each try bounded by a per-request timeout (5s
// for put and delete, 30s for batches). A peer acknowledges with any 2xx
// status. Deletes additionally accept 404 because the peer already reached the
// goal state. A peer that exhausts its tries is marked unhealthy in the
// HealthMonitor.
//
// Peers are contacted one after the other (FanOutSequential, default) or all
// at once (FanOutConcurrent, golang.org/x/sync/errgroup). The quorum is decided
// only after every peer finished. Retries ignore the cancellation of the
// caller, the local write is already committed at that point.
//
// Replicated requests carry the X-Replication header, the receiving node then
// applies the write locally without replicating it again.
//
// # Health Monitor
//
// HealthMonitor probes the liveness endpoint of peers (timeout 3s) and caches
// every verdict for a TTL of 10s in a puzpuzpuz/xsync map. The clock is
// injectable for tests. ClusterStatus always probes fresh and reports whether
// the cluster currently has a write quorum.
package replication
