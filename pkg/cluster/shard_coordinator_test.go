package cluster

import (
	"log/slog"
	"testing"
)

func newTestCoordinator(t *testing.T, shardCount int) *ShardCoordinator {
	t.Helper()
	return NewShardCoordinator(Config{NodeAddress: "127.0.0.1:9000", ShardCount: shardCount}, nil, slog.Default())
}

func TestNewShardCoordinatorDefaultsNamespace(t *testing.T) {
	c := newTestCoordinator(t, 4)
	if c.config.Namespace != defaultNamespace {
		t.Errorf("Namespace = %q, want %q", c.config.Namespace, defaultNamespace)
	}
}

func TestNewShardCoordinatorExplicitNamespace(t *testing.T) {
	c := NewShardCoordinator(Config{Namespace: "/custom", ShardCount: 4}, nil, slog.Default())
	if c.config.Namespace != "/custom" {
		t.Errorf("Namespace = %q, want /custom", c.config.Namespace)
	}
}

func TestKeyHelpers(t *testing.T) {
	c := NewShardCoordinator(Config{Namespace: "/svs-test", ShardCount: 4}, nil, slog.Default())
	if got, want := c.nodesKey(), "/svs-test/nodes/"; got != want {
		t.Errorf("nodesKey() = %q, want %q", got, want)
	}
	if got, want := c.nodeKey("n1"), "/svs-test/nodes/n1"; got != want {
		t.Errorf("nodeKey(n1) = %q, want %q", got, want)
	}
	if got, want := c.leaderKey(), "/svs-test/leader"; got != want {
		t.Errorf("leaderKey() = %q, want %q", got, want)
	}
}

func TestGetNodeInfoStartsAsFollower(t *testing.T) {
	c := newTestCoordinator(t, 4)
	info := c.GetNodeInfo()
	if info.Role != NodeRoleFollower {
		t.Errorf("initial Role = %v, want follower", info.Role)
	}
	if info.State != NodeStateStarting {
		t.Errorf("initial State = %v, want starting", info.State)
	}
	if info.Address != "127.0.0.1:9000" {
		t.Errorf("Address = %q, want 127.0.0.1:9000", info.Address)
	}
}

func TestGetNodeInfoReturnsACopy(t *testing.T) {
	c := newTestCoordinator(t, 4)
	info := c.GetNodeInfo()
	info.Role = NodeRoleLeader
	if c.GetNodeInfo().Role == NodeRoleLeader {
		t.Error("mutating the returned NodeInfo affected the coordinator's internal state")
	}
}

func TestIsLeaderFalseInitially(t *testing.T) {
	c := newTestCoordinator(t, 4)
	if c.IsLeader() {
		t.Error("IsLeader() before any election: want false")
	}
}

func TestGetLeaderNilInitially(t *testing.T) {
	c := newTestCoordinator(t, 4)
	if c.GetLeader() != nil {
		t.Error("GetLeader() before any election: want nil")
	}
}

func TestGetPeersEmptyInitially(t *testing.T) {
	c := newTestCoordinator(t, 4)
	if len(c.GetPeers()) != 0 {
		t.Errorf("GetPeers() before any membership updates = %v, want empty", c.GetPeers())
	}
}
