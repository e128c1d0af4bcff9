package wiring

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/redisup/internal/core/topology"
)

// =============================================================================
// Fake RESP server
// =============================================================================

// fakeRedis speaks just enough RESP2 to record commands and answer them.
type fakeRedis struct {
	ln    net.Listener
	reply func(cmd []string) string

	mu   sync.Mutex
	cmds [][]string
}

func startFake(t *testing.T, reply func(cmd []string) string) *fakeRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeRedis{ln: ln, reply: reply}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeRedis) Addr() string { return f.ln.Addr().String() }

func (f *fakeRedis) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeRedis) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		cmd, err := readCommand(r)
		if err != nil {
			return
		}
		upper := strings.ToUpper(cmd[0])
		cmd[0] = upper
		if len(cmd) > 1 && (upper == "CLUSTER" || upper == "SENTINEL") {
			cmd[1] = strings.ToUpper(cmd[1])
		}

		var resp string
		switch upper {
		case "HELLO":
			resp = "-ERR unknown command 'HELLO'\r\n"
		case "CLIENT", "PING", "SELECT":
			resp = "+OK\r\n"
		default:
			f.mu.Lock()
			f.cmds = append(f.cmds, cmd)
			f.mu.Unlock()
			resp = "+OK\r\n"
			if f.reply != nil {
				if r := f.reply(cmd); r != "" {
					resp = r
				}
			}
		}
		if _, err := io.WriteString(conn, resp); err != nil {
			return
		}
	}
}

func (f *fakeRedis) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.cmds))
	for _, c := range f.cmds {
		out = append(out, strings.Join(c, " "))
	}
	return out
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "*") {
		return strings.Fields(line), nil
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimRight(hdr, "\r\n")[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func bulk(s string) string {
	return fmt.Sprintf("$%d\r\n%s\r\n", len(s), s)
}

func testExecutor() *Executor {
	return NewExecutor(Config{
		SettleTimeout: time.Second,
		PollInterval:  10 * time.Millisecond,
		DialTimeout:   time.Second,
	}, nil)
}

// =============================================================================
// Sentinel Tests
// =============================================================================

func TestMonitorMaster(t *testing.T) {
	f := startFake(t, nil)
	m := topology.SentinelMonitors([]topology.Endpoint{{Host: "ha-master-1", Port: 6379}}, 2, "pw")[0]

	require.NoError(t, testExecutor().MonitorMaster(context.Background(), f.Addr(), m))

	assert.Equal(t, []string{
		"SENTINEL MONITOR master-1 ha-master-1 6379 2",
		"SENTINEL SET master-1 auth-pass pw",
		"SENTINEL SET master-1 down-after-milliseconds 5000",
		"SENTINEL SET master-1 failover-timeout 10000",
		"SENTINEL SET master-1 parallel-syncs 1",
	}, f.Commands())
}

func TestMonitorMaster_Rejected(t *testing.T) {
	f := startFake(t, func(cmd []string) string {
		if cmd[1] == "MONITOR" {
			return "-ERR Can't resolve instance hostname.\r\n"
		}
		return ""
	})
	m := topology.MonitorConfig{Name: "master-1", Host: "nowhere", Port: 6379, Quorum: 2}

	err := testExecutor().MonitorMaster(context.Background(), f.Addr(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve instance hostname")
}

func TestMonitorMaster_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = testExecutor().MonitorMaster(context.Background(), addr, topology.MonitorConfig{Name: "master-1", Quorum: 1})
	assert.Error(t, err)
}

func TestFailover(t *testing.T) {
	f := startFake(t, nil)
	require.NoError(t, testExecutor().Failover(context.Background(), f.Addr(), "master-1"))
	assert.Equal(t, []string{"SENTINEL FAILOVER master-1"}, f.Commands())
}

func TestMasterAddr(t *testing.T) {
	f := startFake(t, func(cmd []string) string {
		return "*2\r\n" + bulk("172.18.0.3") + bulk("6379")
	})
	addr, err := testExecutor().MasterAddr(context.Background(), f.Addr(), "master-1")
	require.NoError(t, err)
	assert.Equal(t, "172.18.0.3:6379", addr)
}

// =============================================================================
// Cluster Tests
// =============================================================================

func clusterNode(id string, known int) func(cmd []string) string {
	return func(cmd []string) string {
		if cmd[0] != "CLUSTER" {
			return ""
		}
		switch cmd[1] {
		case "MYID":
			return bulk(id)
		case "NODES":
			lines := make([]string, known)
			for i := range lines {
				lines[i] = fmt.Sprintf("node%d 10.0.0.%d:7000@17000 master - 0 0 1 connected", i, i)
			}
			return bulk(strings.Join(lines, "\n") + "\n")
		case "INFO":
			return bulk("cluster_state:ok\r\ncluster_slots_assigned:16384\r\n")
		}
		return ""
	}
}

func TestCreateCluster(t *testing.T) {
	fakes := []*fakeRedis{
		startFake(t, clusterNode("id-m1", 4)),
		startFake(t, clusterNode("id-m2", 4)),
		startFake(t, clusterNode("id-m3", 4)),
		startFake(t, clusterNode("id-r1", 4)),
	}
	masters := []topology.Endpoint{{Host: "10.0.0.2", Port: 7000}, {Host: "10.0.0.3", Port: 7001}, {Host: "10.0.0.4", Port: 7002}}
	replicas := []topology.Endpoint{{Host: "10.0.0.5", Port: 7003}}
	layout := topology.ClusterLayout(masters, replicas, 1)

	members := make([]ClusterMember, len(layout))
	for i, n := range layout {
		members[i] = ClusterMember{Addr: fakes[i].Addr(), ClusterNode: n}
	}

	require.NoError(t, testExecutor().CreateCluster(context.Background(), members, "pw"))

	first := fakes[0].Commands()
	assert.Contains(t, first, "CLUSTER MEET 10.0.0.3 7001")
	assert.Contains(t, first, "CLUSTER MEET 10.0.0.4 7002")
	assert.Contains(t, first, "CLUSTER MEET 10.0.0.5 7003")
	assert.Contains(t, first, "CLUSTER ADDSLOTSRANGE 0 5460")
	assert.Contains(t, fakes[2].Commands(), "CLUSTER ADDSLOTSRANGE 10922 16383")
	assert.Contains(t, fakes[3].Commands(), "CLUSTER REPLICATE id-m1")
	assert.NotContains(t, strings.Join(fakes[3].Commands(), "\n"), "ADDSLOTSRANGE")
}

func TestCreateCluster_GossipNeverConverges(t *testing.T) {
	fakes := []*fakeRedis{
		startFake(t, clusterNode("a", 1)),
		startFake(t, clusterNode("b", 1)),
		startFake(t, clusterNode("c", 1)),
	}
	layout := topology.ClusterLayout([]topology.Endpoint{{Host: "a", Port: 1}, {Host: "b", Port: 2}, {Host: "c", Port: 3}}, nil, 0)
	members := make([]ClusterMember, len(layout))
	for i, n := range layout {
		members[i] = ClusterMember{Addr: fakes[i].Addr(), ClusterNode: n}
	}

	err := testExecutor().CreateCluster(context.Background(), members, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all nodes known")
}

func TestClusterState(t *testing.T) {
	f := startFake(t, clusterNode("x", 1))
	state, err := testExecutor().ClusterState(context.Background(), f.Addr(), "")
	require.NoError(t, err)
	assert.Equal(t, "ok", state)
}
