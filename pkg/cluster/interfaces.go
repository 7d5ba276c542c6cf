// Package cluster provides the optional multi-node coordination layer:
// a set of engine processes, each hosting a disjoint set of shards
// (index partitions), register themselves in etcd, elect a leader that
// owns shard-to-node assignment, and watch each other's liveness.
//
// This is deliberately narrower than general cluster membership: there
// is no replication, consensus-value proposal, or peer messaging here
// — only what shard assignment needs (who is alive, who is the
// leader, which node owns which shard).
package cluster

import (
	"context"
	"time"
)

// NodeRole is a node's current position in the leader-election scheme.
type NodeRole string

const (
	NodeRoleLeader    NodeRole = "leader"
	NodeRoleFollower  NodeRole = "follower"
	NodeRoleCandidate NodeRole = "candidate"
)

// NodeState is a node's lifecycle state.
type NodeState string

const (
	NodeStateStarting NodeState = "starting"
	NodeStateRunning  NodeState = "running"
	NodeStateStopped  NodeState = "stopped"
)

// NodeInfo is the record a node publishes about itself to etcd.
type NodeInfo struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Role      NodeRole  `json:"role"`
	State     NodeState `json:"state"`
	Shards    []int     `json:"shards"`
	StartTime time.Time `json:"start_time"`
	LastSeen  time.Time `json:"last_seen"`
}

// ClusterHealth summarizes the coordination layer as observed by one node.
type ClusterHealth struct {
	Status      string    `json:"status"`
	NodeCount   int       `json:"node_count"`
	LeaderID    string    `json:"leader_id"`
	ShardCount  int       `json:"shard_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Coordinator is the shard-coordination surface: registration, liveness,
// leader election, and shard assignment lookup over a set of engine
// processes. ShardCoordinator is the only production implementation;
// the interface exists so callers can swap in a no-op single-node
// stand-in without an etcd dependency.
type Coordinator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	GetNodeInfo() *NodeInfo
	GetPeers() []*NodeInfo
	GetLeader() *NodeInfo
	IsLeader() bool

	Health(ctx context.Context) (*ClusterHealth, error)

	// ShardOwner returns the node ID responsible for shardID, per the
	// sharding strategy's assignment.
	ShardOwner(shardID int) (string, bool)
}
