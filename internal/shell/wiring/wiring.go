// Package wiring turns independently started redis processes into one
// topology: it forms clusters and registers sentinel monitors over the Redis
// protocol, and drives sentinel failovers afterwards.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/artpar/redisup/internal/core/topology"
)

// Config controls wiring timing.
type Config struct {
	// SettleTimeout bounds how long to wait for gossip to converge.
	SettleTimeout time.Duration
	// PollInterval is the pause between convergence checks.
	PollInterval time.Duration
	// DialTimeout bounds connecting to a node.
	DialTimeout time.Duration
}

// DefaultConfig returns the stock wiring timing.
func DefaultConfig() Config {
	return Config{
		SettleTimeout: 30 * time.Second,
		PollInterval:  250 * time.Millisecond,
		DialTimeout:   3 * time.Second,
	}
}

// Executor applies topology wiring to live nodes.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// NewExecutor creates an executor. Zero config fields take their defaults.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = def.SettleTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: logger}
}

func (e *Executor) client(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: e.cfg.DialTimeout,
		MaxRetries:  -1,
		PoolSize:    1,
	})
}

func (e *Executor) sentinel(addr string) *redis.SentinelClient {
	return redis.NewSentinelClient(&redis.Options{
		Addr:        addr,
		DialTimeout: e.cfg.DialTimeout,
		MaxRetries:  -1,
		PoolSize:    1,
	})
}

// =============================================================================
// Cluster
// =============================================================================

// ClusterMember is a cluster node: Addr is where this process reaches it,
// Endpoint (inside ClusterNode) is where its peers reach it.
type ClusterMember struct {
	Addr string
	topology.ClusterNode
}

// CreateCluster joins the members into one cluster. Every node meets the
// first member, masters take their slot ranges, and once gossip has spread
// each replica attaches to its master. It returns when every node reports
// cluster_state:ok.
func (e *Executor) CreateCluster(ctx context.Context, members []ClusterMember, password string) error {
	if len(members) == 0 {
		return errors.New("no cluster members")
	}

	clients := make([]*redis.Client, len(members))
	for i, m := range members {
		clients[i] = e.client(m.Addr, password)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	ids := make([]string, len(members))
	masterIDs := make(map[int]string)
	for i, c := range clients {
		id, err := c.Do(ctx, "CLUSTER", "MYID").Text()
		if err != nil {
			return fmt.Errorf("cluster myid on %s: %w", members[i].Addr, err)
		}
		ids[i] = id
		if !members[i].IsReplica {
			masterIDs[members[i].Master] = id
		}
	}

	first := clients[0]
	for _, m := range members[1:] {
		if err := first.ClusterMeet(ctx, m.Host, strconv.Itoa(m.Port)).Err(); err != nil {
			return fmt.Errorf("cluster meet %s: %w", m.Endpoint, err)
		}
	}

	for i, m := range members {
		if m.Slots == nil {
			continue
		}
		if err := clients[i].ClusterAddSlotsRange(ctx, m.Slots.Start, m.Slots.End).Err(); err != nil {
			return fmt.Errorf("assign slots %s to %s: %w", m.Slots, m.Addr, err)
		}
		e.logger.Debug("assigned slots", "node", m.Addr, "slots", m.Slots.String())
	}

	if err := e.poll(ctx, "all nodes known", func() error {
		for i, c := range clients {
			nodes, err := c.ClusterNodes(ctx).Result()
			if err != nil {
				return err
			}
			if n := countLines(nodes); n < len(members) {
				return fmt.Errorf("%s knows %d of %d nodes", members[i].Addr, n, len(members))
			}
		}
		return nil
	}); err != nil {
		return err
	}

	for i, m := range members {
		if !m.IsReplica {
			continue
		}
		masterID, ok := masterIDs[m.Master]
		if !ok {
			return fmt.Errorf("replica %s follows unknown master %d", m.Addr, m.Master)
		}
		if err := clients[i].ClusterReplicate(ctx, masterID).Err(); err != nil {
			return fmt.Errorf("replicate %s from %s: %w", m.Addr, masterID, err)
		}
	}

	return e.poll(ctx, "cluster state ok", func() error {
		for i, c := range clients {
			info, err := c.ClusterInfo(ctx).Result()
			if err != nil {
				return err
			}
			if !strings.Contains(info, "cluster_state:ok") {
				return fmt.Errorf("%s reports cluster not ok", members[i].Addr)
			}
		}
		return nil
	})
}

// ClusterState returns the cluster_state field reported by one node.
func (e *Executor) ClusterState(ctx context.Context, addr, password string) (string, error) {
	c := e.client(addr, password)
	defer c.Close()

	info, err := c.ClusterInfo(ctx).Result()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "cluster_state:"); ok {
			return v, nil
		}
	}
	return "", errors.New("cluster_state missing from CLUSTER INFO")
}

// =============================================================================
// Sentinel
// =============================================================================

// MonitorMaster registers one master with a sentinel and applies its options.
func (e *Executor) MonitorMaster(ctx context.Context, sentinelAddr string, m topology.MonitorConfig) error {
	sc := e.sentinel(sentinelAddr)
	defer sc.Close()

	err := sc.Monitor(ctx, m.Name, m.Host, strconv.Itoa(m.Port), strconv.Itoa(m.Quorum)).Err()
	if err != nil {
		return fmt.Errorf("sentinel monitor %s on %s: %w", m.Name, sentinelAddr, err)
	}

	opts := m.Options()
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := sc.Set(ctx, m.Name, k, opts[k]).Err(); err != nil {
			return fmt.Errorf("sentinel set %s %s on %s: %w", m.Name, k, sentinelAddr, err)
		}
	}
	e.logger.Debug("registered monitor", "sentinel", sentinelAddr, "master", m.Name, "quorum", m.Quorum)
	return nil
}

// Failover forces a failover of the named master.
func (e *Executor) Failover(ctx context.Context, sentinelAddr, name string) error {
	sc := e.sentinel(sentinelAddr)
	defer sc.Close()

	if err := sc.Failover(ctx, name).Err(); err != nil {
		return fmt.Errorf("sentinel failover %s on %s: %w", name, sentinelAddr, err)
	}
	return nil
}

// MasterAddr returns the address a sentinel currently reports for a master.
func (e *Executor) MasterAddr(ctx context.Context, sentinelAddr, name string) (string, error) {
	sc := e.sentinel(sentinelAddr)
	defer sc.Close()

	addr, err := sc.GetMasterAddrByName(ctx, name).Result()
	if err != nil {
		return "", fmt.Errorf("sentinel get-master-addr-by-name %s on %s: %w", name, sentinelAddr, err)
	}
	if len(addr) != 2 {
		return "", fmt.Errorf("unexpected master address %v", addr)
	}
	return addr[0] + ":" + addr[1], nil
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Executor) poll(ctx context.Context, what string, check func() error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SettleTimeout)
	defer cancel()

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = check()
		return lastErr
	}, backoff.WithContext(backoff.NewConstantBackOff(e.cfg.PollInterval), ctx))
	if err != nil {
		if lastErr != nil && lastErr != err {
			return fmt.Errorf("waiting for %s: %w (last: %v)", what, err, lastErr)
		}
		return fmt.Errorf("waiting for %s: %w", what, err)
	}
	return nil
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
