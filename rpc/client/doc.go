// Package client implements the HTTP clients of rKV.
//
// NewRemoteStore returns an IRemoteStore, a store.IStore whose operations are
// executed by one or more rKV nodes. Endpoints are used round-robin. A
// request that got no answer at all is retried on the next endpoint, a request
// that got an answer is never retried because the write may have been applied.
//
//	s, err := client.NewRemoteStore(common.ClientConfig{
//	  Endpoints:     []string{"http://node-1:8000", "http://node-2:8000"},
//	  TimeoutSecond: 5,
//	  RetryCount:    2,
//	})
//	entry, created, err := s.Put(ctx, "user/1", "alice", true)
//
// NewPeerClient returns the replication.IPeerClient used by the coordinator.
// Its requests carry the replication header so the receiving peer does not
// replicate them again.
package client
