package replication

// RequiredReplicas returns the number of nodes (local node included)
// that must apply a write for it to be committed: a strict majority of peers+1.
func RequiredReplicas(peers int) int {
	return (peers+1)/2 + 1
}

// HasQuorum reports whether reached nodes (local node included) form a
// majority of a cluster with the given number of peers.
func HasQuorum(reached, peers int) bool {
	return reached >= RequiredReplicas(peers)
}
