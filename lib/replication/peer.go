package replication

import (
	"context"
	"net/http"

	"github.com/ValentinKolb/rKV/lib/store"
)

// IPeerClient sends replicated writes and health probes to peers.
// Every method returns the HTTP status code of the peer's answer. A non-nil
// error means no answer was received (connection refused, timeout, ...).
type IPeerClient interface {
	// Put replicates a single write of key to peer.
	Put(ctx context.Context, peer, key, value string) (code int, err error)
	// Delete replicates the deletion of key to peer.
	Delete(ctx context.Context, peer, key string) (code int, err error)
	// BatchPut replicates a whole batch to peer in a single request.
	BatchPut(ctx context.Context, peer string, items []store.BatchItem) (code int, err error)
	// Health probes the liveness endpoint of peer.
	Health(ctx context.Context, peer string) (code int, err error)
}

// acknowledged reports whether a peer answer counts as a successful replication.
// Deletes are idempotent, a peer that does not know the key already reached the goal state.
func acknowledged(kind OpKind, code int) bool {
	if code >= 200 && code < 300 {
		return true
	}
	return kind == OpDelete && code == http.StatusNotFound
}
