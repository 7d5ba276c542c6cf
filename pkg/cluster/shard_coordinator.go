package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Config configures a ShardCoordinator.
type Config struct {
	NodeAddress string
	ShardCount  int
	Namespace   string // etcd key prefix, e.g. "/svs"
}

const defaultNamespace = "/svs"

// ShardCoordinator registers an engine process with etcd, elects a
// leader among the registered nodes, and assigns shards to nodes via
// HashSharding. It is the production Coordinator implementation; a
// single-process deployment can skip it entirely and own every shard
// locally.
type ShardCoordinator struct {
	config Config
	client *clientv3.Client

	mu       sync.RWMutex
	nodeInfo *NodeInfo
	role     NodeRole
	leader   *NodeInfo
	peers    map[string]*NodeInfo

	sharding *HashSharding

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewShardCoordinator creates a coordinator for the local node.
// Assumes the node is not yet running; call Start to register it.
func NewShardCoordinator(config Config, client *clientv3.Client, logger *slog.Logger) *ShardCoordinator {
	if config.Namespace == "" {
		config.Namespace = defaultNamespace
	}
	return &ShardCoordinator{
		config: config,
		client: client,
		nodeInfo: &NodeInfo{
			ID:        uuid.NewString(),
			Address:   config.NodeAddress,
			Role:      NodeRoleFollower,
			State:     NodeStateStarting,
			StartTime: time.Now(),
		},
		role:     NodeRoleFollower,
		peers:    make(map[string]*NodeInfo),
		sharding: NewHashSharding(config.ShardCount),
		logger:   logger,
	}
}

func (c *ShardCoordinator) nodesKey() string  { return c.config.Namespace + "/nodes/" }
func (c *ShardCoordinator) nodeKey(id string) string {
	return c.nodesKey() + id
}
func (c *ShardCoordinator) leaderKey() string { return c.config.Namespace + "/leader" }

// Start registers the node, begins heartbeating, watches for membership
// changes, and attempts to claim leadership if none holds it.
func (c *ShardCoordinator) Start(ctx context.Context) error {
	c.logger.Info("starting shard coordinator", "node_id", c.nodeInfo.ID, "address", c.nodeInfo.Address)

	if err := c.registerNode(ctx); err != nil {
		return fmt.Errorf("register node: %w", err)
	}

	childCtx, cancel := context.WithCancel(context.Background())
	c.ctx = childCtx
	c.cancel = cancel

	go c.heartbeatLoop()
	go c.watchNodes()

	if err := c.discoverNodes(ctx); err != nil {
		c.logger.Warn("failed to discover existing nodes", "error", err)
	}
	go c.tryBecomeLeader()

	c.mu.Lock()
	c.nodeInfo.State = NodeStateRunning
	c.mu.Unlock()

	c.logger.Info("shard coordinator started", "node_id", c.nodeInfo.ID)
	return nil
}

// Stop deregisters the node and stops its background loops.
func (c *ShardCoordinator) Stop(ctx context.Context) error {
	c.logger.Info("stopping shard coordinator", "node_id", c.nodeInfo.ID)
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.deregisterNode(ctx); err != nil {
		c.logger.Error("failed to deregister node", "error", err)
	}
	c.mu.Lock()
	c.nodeInfo.State = NodeStateStopped
	c.mu.Unlock()
	return nil
}

// GetNodeInfo returns this node's current record.
func (c *ShardCoordinator) GetNodeInfo() *NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := *c.nodeInfo
	return &info
}

// GetPeers returns every other known node.
func (c *ShardCoordinator) GetPeers() []*NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	peers := make([]*NodeInfo, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	return peers
}

// GetLeader returns the current leader, or nil if none is known.
func (c *ShardCoordinator) GetLeader() *NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leader
}

// IsLeader reports whether this node holds leadership.
func (c *ShardCoordinator) IsLeader() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role == NodeRoleLeader
}

// Health reports the coordinator's view of cluster membership.
func (c *ShardCoordinator) Health(ctx context.Context) (*ClusterHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := "healthy"
	if c.nodeInfo.State != NodeStateRunning {
		status = "unhealthy"
	}
	leaderID := ""
	if c.leader != nil {
		leaderID = c.leader.ID
	}
	return &ClusterHealth{
		Status:      status,
		NodeCount:   len(c.peers) + 1,
		LeaderID:    leaderID,
		ShardCount:  c.sharding.ShardCount(),
		LastUpdated: time.Now(),
	}, nil
}

// ShardOwner returns the node ID currently assigned to shardID.
func (c *ShardCoordinator) ShardOwner(shardID int) (string, bool) {
	return c.sharding.Owner(shardID)
}

func (c *ShardCoordinator) registerNode(ctx context.Context) error {
	data, err := json.Marshal(c.nodeInfo)
	if err != nil {
		return fmt.Errorf("marshal node info: %w", err)
	}
	if _, err := c.client.Put(ctx, c.nodeKey(c.nodeInfo.ID), string(data)); err != nil {
		return fmt.Errorf("put node record: %w", err)
	}
	c.logger.Info("node registered", "node_id", c.nodeInfo.ID)
	return nil
}

func (c *ShardCoordinator) deregisterNode(ctx context.Context) error {
	if _, err := c.client.Delete(ctx, c.nodeKey(c.nodeInfo.ID)); err != nil {
		return fmt.Errorf("delete node record: %w", err)
	}
	c.logger.Info("node deregistered", "node_id", c.nodeInfo.ID)
	return nil
}

func (c *ShardCoordinator) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(); err != nil {
				c.logger.Error("heartbeat failed", "error", err)
			}
		}
	}
}

func (c *ShardCoordinator) sendHeartbeat() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	c.nodeInfo.LastSeen = time.Now()
	data, err := json.Marshal(c.nodeInfo)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal node info: %w", err)
	}
	_, err = c.client.Put(ctx, c.nodeKey(c.nodeInfo.ID), string(data))
	return err
}

func (c *ShardCoordinator) watchNodes() {
	watchChan := c.client.Watch(c.ctx, c.nodesKey(), clientv3.WithPrefix())
	for {
		select {
		case <-c.ctx.Done():
			return
		case resp := <-watchChan:
			for _, ev := range resp.Events {
				switch ev.Type {
				case clientv3.EventTypePut:
					c.handleNodeJoin(ev.Kv.Value)
				case clientv3.EventTypeDelete:
					id := string(ev.Kv.Key)[len(c.nodesKey()):]
					c.handleNodeLeave(id)
				}
			}
		}
	}
}

func (c *ShardCoordinator) handleNodeJoin(value []byte) {
	var info NodeInfo
	if err := json.Unmarshal(value, &info); err != nil {
		c.logger.Error("failed to unmarshal node info", "error", err)
		return
	}
	if info.ID == c.nodeInfo.ID {
		return
	}
	c.mu.Lock()
	c.peers[info.ID] = &info
	c.rebalanceLocked()
	c.mu.Unlock()
	c.logger.Info("node joined", "node_id", info.ID, "address", info.Address)
}

func (c *ShardCoordinator) handleNodeLeave(id string) {
	if id == c.nodeInfo.ID {
		return
	}
	c.mu.Lock()
	delete(c.peers, id)
	c.rebalanceLocked()
	c.mu.Unlock()
	c.logger.Info("node left", "node_id", id)
}

// rebalanceLocked recomputes shard ownership over the current
// membership view. Callers must hold c.mu.
func (c *ShardCoordinator) rebalanceLocked() {
	ids := make([]string, 0, len(c.peers)+1)
	ids = append(ids, c.nodeInfo.ID)
	for id := range c.peers {
		ids = append(ids, id)
	}
	c.sharding.Rebalance(ids)
}

func (c *ShardCoordinator) discoverNodes(ctx context.Context) error {
	resp, err := c.client.Get(ctx, c.nodesKey(), clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kv := range resp.Kvs {
		var info NodeInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			c.logger.Error("failed to unmarshal node info", "error", err)
			continue
		}
		if info.ID == c.nodeInfo.ID {
			continue
		}
		c.peers[info.ID] = &info
		c.logger.Info("discovered existing node", "node_id", info.ID, "address", info.Address)
	}
	c.rebalanceLocked()
	return nil
}

// tryBecomeLeader attempts to claim leadership via a compare-and-swap
// create on leaderKey, succeeding only if no leader key yet exists.
func (c *ShardCoordinator) tryBecomeLeader() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.client.Get(ctx, c.leaderKey())
	if err != nil {
		c.logger.Error("failed to check for existing leader", "error", err)
		return
	}
	if len(resp.Kvs) > 0 {
		var info NodeInfo
		if err := json.Unmarshal(resp.Kvs[0].Value, &info); err == nil {
			c.mu.Lock()
			c.leader = &info
			c.mu.Unlock()
		}
		return
	}
	if err := c.becomeLeader(ctx); err != nil {
		c.logger.Error("failed to become leader", "error", err)
	}
}

func (c *ShardCoordinator) becomeLeader(ctx context.Context) error {
	data, err := json.Marshal(c.nodeInfo)
	if err != nil {
		return fmt.Errorf("marshal node info: %w", err)
	}

	txn := c.client.Txn(ctx)
	txn.If(clientv3.Compare(clientv3.CreateRevision(c.leaderKey()), "=", 0))
	txn.Then(clientv3.OpPut(c.leaderKey(), string(data)))
	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("commit leader transaction: %w", err)
	}

	if resp.Succeeded {
		c.mu.Lock()
		c.role = NodeRoleLeader
		c.nodeInfo.Role = NodeRoleLeader
		c.leader = c.nodeInfo
		c.mu.Unlock()
		c.logger.Info("node became leader", "node_id", c.nodeInfo.ID)
	}
	return nil
}
