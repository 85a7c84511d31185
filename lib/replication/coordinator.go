package replication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetLogger("replication")

const (
	// DefaultAttempts is the number of tries per peer and operation.
	DefaultAttempts = 3
	// DefaultRetryDelay is the pause between two tries.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultPointTimeout bounds a single put or delete request to a peer.
	DefaultPointTimeout = 5 * time.Second
	// DefaultBatchTimeout bounds a single batch request to a peer.
	DefaultBatchTimeout = 30 * time.Second
)

var quorumFailures = metrics.GetOrCreateCounter("rkv_replication_quorum_failures_total")

// --------------------------------------------------------------------------
// Operation & Outcome
// --------------------------------------------------------------------------

type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpBatchPut
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	case OpBatchPut:
		return "batch_put"
	default:
		return "unknown"
	}
}

// Operation is a local write that has to be applied on the peers.
type Operation struct {
	Kind  OpKind
	Key   string            // OpPut, OpDelete
	Value string            // OpPut
	Items []store.BatchItem // OpBatchPut
}

// NewPutOp creates the replication operation for a single put.
func NewPutOp(key, value string) Operation {
	return Operation{Kind: OpPut, Key: key, Value: value}
}

// NewDeleteOp creates the replication operation for a delete.
func NewDeleteOp(key string) Operation {
	return Operation{Kind: OpDelete, Key: key}
}

// NewBatchPutOp creates the replication operation for a batch put.
func NewBatchPutOp(items []store.BatchItem) Operation {
	return Operation{Kind: OpBatchPut, Items: items}
}

func (op Operation) String() string {
	if op.Kind == OpBatchPut {
		return fmt.Sprintf("%s(%d items)", op.Kind, len(op.Items))
	}
	return fmt.Sprintf("%s(%s)", op.Kind, op.Key)
}

// Outcome is the result of replicating one operation.
type Outcome struct {
	HasQuorum bool
	// Succeeded and Failed list peer URLs in configuration order.
	Succeeded []string
	Failed    []string
	// Required is the number of nodes (local node included) needed for quorum.
	Required int
	// Total is the cluster size (local node included).
	Total int
}

// Reached is the number of nodes that applied the write, the local node included.
func (o Outcome) Reached() int {
	return len(o.Succeeded) + 1
}

// Err returns a *store.QuorumError if the quorum was not reached, nil otherwise.
func (o Outcome) Err() error {
	if o.HasQuorum {
		return nil
	}
	return &store.QuorumError{
		Reached:  o.Reached(),
		Required: o.Required,
		Total:    o.Total,
		Failed:   append([]string(nil), o.Failed...),
	}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IReplicator replicates committed local writes to the peers of the node.
type IReplicator interface {
	// Replicate sends op to every peer and decides the quorum once all peers
	// either acknowledged the write or exhausted their retries.
	// Cancelling ctx does not abort retries that are already in flight.
	Replicate(ctx context.Context, op Operation) Outcome
	// Peers returns the configured peer URLs.
	Peers() []string
}

// FanOut selects how a write is sent to the peers.
type FanOut string

const (
	// FanOutSequential contacts one peer after the other.
	FanOutSequential FanOut = "sequential"
	// FanOutConcurrent contacts all peers at the same time.
	FanOutConcurrent FanOut = "concurrent"
)

// ParseFanOut converts a configuration string into a FanOut.
func ParseFanOut(s string) (FanOut, error) {
	switch FanOut(strings.ToLower(strings.TrimSpace(s))) {
	case "", FanOutSequential:
		return FanOutSequential, nil
	case FanOutConcurrent:
		return FanOutConcurrent, nil
	default:
		return "", errors.Newf("invalid fan out %q, must be one of %s, %s", s, FanOutSequential, FanOutConcurrent)
	}
}

// --------------------------------------------------------------------------
// Coordinator
// --------------------------------------------------------------------------

// Options configures the coordinator. Attempts and the timeouts fall back to
// their defaults if <= 0. RetryDelay is used as given.
type Options struct {
	Attempts     int
	RetryDelay   time.Duration
	PointTimeout time.Duration
	BatchTimeout time.Duration
	FanOut       FanOut
}

// DefaultOptions returns the options used by the server if nothing is configured.
func DefaultOptions() Options {
	return Options{
		Attempts:     DefaultAttempts,
		RetryDelay:   DefaultRetryDelay,
		PointTimeout: DefaultPointTimeout,
		BatchTimeout: DefaultBatchTimeout,
		FanOut:       FanOutSequential,
	}
}

type coordinator struct {
	client IPeerClient
	health *HealthMonitor
	opts   Options
}

// NewCoordinator creates a replicator for the peers of health.
// Peers that exhaust their retries are marked unhealthy in health.
func NewCoordinator(client IPeerClient, health *HealthMonitor, opts Options) IReplicator {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.PointTimeout <= 0 {
		opts.PointTimeout = DefaultPointTimeout
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	if opts.FanOut == "" {
		opts.FanOut = FanOutSequential
	}
	return &coordinator{
		client: client,
		health: health,
		opts:   opts,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IReplicator)
// --------------------------------------------------------------------------

func (c *coordinator) Peers() []string {
	return c.health.Peers()
}

func (c *coordinator) Replicate(ctx context.Context, op Operation) Outcome {
	peers := c.health.peers
	outcome := Outcome{
		Required: RequiredReplicas(len(peers)),
		Total:    len(peers) + 1,
	}
	if len(peers) == 0 {
		outcome.HasQuorum = true
		return outcome
	}

	// a write that is already committed locally must be offered to every peer
	ctx = context.WithoutCancel(ctx)

	log.Infof("replicating %s to %d peers (%s)", op, len(peers), c.opts.FanOut)

	var acks []bool
	switch c.opts.FanOut {
	case FanOutConcurrent:
		acks = c.fanOutConcurrent(ctx, peers, op)
	default:
		acks = c.fanOutSequential(ctx, peers, op)
	}

	for i, peer := range peers {
		if acks[i] {
			outcome.Succeeded = append(outcome.Succeeded, peer)
		} else {
			outcome.Failed = append(outcome.Failed, peer)
		}
	}
	outcome.HasQuorum = outcome.Reached() >= outcome.Required

	if outcome.HasQuorum {
		log.Infof("replication of %s successful: %d/%d nodes", op, outcome.Reached(), outcome.Total)
	} else {
		quorumFailures.Inc()
		log.Errorf("replication of %s failed: only %d/%d nodes, needed %d (failed peers: %s)",
			op, outcome.Reached(), outcome.Total, outcome.Required, strings.Join(outcome.Failed, ", "))
	}
	return outcome
}

// --------------------------------------------------------------------------
// Fan Out Strategies
// --------------------------------------------------------------------------

func (c *coordinator) fanOutSequential(ctx context.Context, peers []string, op Operation) []bool {
	acks := make([]bool, len(peers))
	for i, peer := range peers {
		acks[i] = c.replicateTo(ctx, peer, op)
	}
	return acks
}

func (c *coordinator) fanOutConcurrent(ctx context.Context, peers []string, op Operation) []bool {
	acks := make([]bool, len(peers))
	var g errgroup.Group
	for i, peer := range peers {
		g.Go(func() error {
			acks[i] = c.replicateTo(ctx, peer, op)
			return nil
		})
	}
	_ = g.Wait() // peer failures are reported through acks
	return acks
}

// --------------------------------------------------------------------------
// Single Peer
// --------------------------------------------------------------------------

// replicateTo sends op to peer, retrying up to the configured attempts.
func (c *coordinator) replicateTo(ctx context.Context, peer string, op Operation) bool {
	attempt := 0
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RetryDelay), uint64(c.opts.Attempts-1))

	err := backoff.RetryNotify(func() error {
		attempt++
		metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_replication_attempts_total{op=%q}`, op.Kind)).Inc()
		return c.send(ctx, peer, op)
	}, b, func(err error, next time.Duration) {
		log.Warningf("failed to replicate %s to %s on attempt %d: %v (retrying in %s)", op, peer, attempt, err, next)
	})

	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_replication_peer_failures_total{op=%q}`, op.Kind)).Inc()
		log.Warningf("giving up replicating %s to %s after %d attempts: %v", op, peer, attempt, err)
		c.health.MarkUnhealthy(peer)
		return false
	}

	log.Debugf("replicated %s to %s on attempt %d", op, peer, attempt)
	return true
}

// send performs a single request with the per-attempt timeout.
func (c *coordinator) send(ctx context.Context, peer string, op Operation) error {
	timeout := c.opts.PointTimeout
	if op.Kind == OpBatchPut {
		timeout = c.opts.BatchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		code int
		err  error
	)
	switch op.Kind {
	case OpPut:
		code, err = c.client.Put(ctx, peer, op.Key, op.Value)
	case OpDelete:
		code, err = c.client.Delete(ctx, peer, op.Key)
	case OpBatchPut:
		code, err = c.client.BatchPut(ctx, peer, op.Items)
	default:
		return backoff.Permanent(errors.Newf("unknown operation kind %d", op.Kind))
	}
	if err != nil {
		return errors.Wrapf(err, "request to %s", peer)
	}
	if !acknowledged(op.Kind, code) {
		return errors.Newf("peer %s answered with status %d", peer, code)
	}
	return nil
}
