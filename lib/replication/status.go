package replication

// NodeStatus is the health of a single peer.
type NodeStatus struct {
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
}

// ClusterStatus summarizes the health of the cluster as seen by this node.
// Counts include the local node, which is always healthy.
type ClusterStatus struct {
	ReplicationEnabled       bool         `json:"replication_enabled"`
	TotalNodes               int          `json:"total_nodes"`
	HealthyNodes             int          `json:"healthy_nodes"`
	UnhealthyNodes           int          `json:"unhealthy_nodes"`
	RequiredForQuorum        int          `json:"required_for_quorum"`
	HasQuorum                bool         `json:"has_quorum"`
	CanAcceptWrites          bool         `json:"can_accept_writes"`
	AutomaticFailoverEnabled bool         `json:"automatic_failover_enabled"`
	RetryAttempts            int          `json:"retry_attempts"`
	FanOut                   FanOut       `json:"fan_out"`
	Nodes                    []NodeStatus `json:"nodes"`
}
