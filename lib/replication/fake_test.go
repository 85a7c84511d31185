package replication

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/cockroachdb/errors"
)

var errUnreachable = errors.New("connection refused")

// peerBehaviour returns the answer of a fake peer for the n-th call (starting at 1)
type peerBehaviour func(kind string, n int) (int, error)

func alwaysCode(code int) peerBehaviour {
	return func(string, int) (int, error) { return code, nil }
}

func unreachable() peerBehaviour {
	return func(string, int) (int, error) { return 0, errUnreachable }
}

// failTimes fails the first n calls, then answers with code
func failTimes(n, code int) peerBehaviour {
	return func(_ string, call int) (int, error) {
		if call <= n {
			return 0, errUnreachable
		}
		return code, nil
	}
}

// fakePeers is an in-memory IPeerClient
type fakePeers struct {
	mu        sync.Mutex
	behaviour map[string]peerBehaviour
	calls     map[string]int
	kinds     map[string][]string
	batches   map[string][][]store.BatchItem
	ctxErrs   []error
}

func newFakePeers(behaviour map[string]peerBehaviour) *fakePeers {
	return &fakePeers{
		behaviour: behaviour,
		calls:     map[string]int{},
		kinds:     map[string][]string{},
		batches:   map[string][][]store.BatchItem{},
	}
}

func (f *fakePeers) answer(ctx context.Context, peer, kind string) (int, error) {
	f.mu.Lock()
	f.calls[peer]++
	n := f.calls[peer]
	f.kinds[peer] = append(f.kinds[peer], kind)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	b, ok := f.behaviour[peer]
	f.mu.Unlock()
	if !ok {
		return 0, errUnreachable
	}
	return b(kind, n)
}

func (f *fakePeers) Put(ctx context.Context, peer, _, _ string) (int, error) {
	return f.answer(ctx, peer, "put")
}

func (f *fakePeers) Delete(ctx context.Context, peer, _ string) (int, error) {
	return f.answer(ctx, peer, "delete")
}

func (f *fakePeers) BatchPut(ctx context.Context, peer string, items []store.BatchItem) (int, error) {
	f.mu.Lock()
	f.batches[peer] = append(f.batches[peer], items)
	f.mu.Unlock()
	return f.answer(ctx, peer, "batch")
}

func (f *fakePeers) Health(ctx context.Context, peer string) (int, error) {
	return f.answer(ctx, peer, "health")
}

func (f *fakePeers) Calls(peer string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[peer]
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
