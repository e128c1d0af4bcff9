package topology

import (
	"fmt"
	"strconv"
)

// =============================================================================
// Cluster Slots
// =============================================================================

// TotalSlots is the fixed size of the Redis Cluster hash space.
const TotalSlots = 16384

// MinClusterMasters is the smallest master count redis-cli accepts.
const MinClusterMasters = 3

// SlotRange is an inclusive range of hash slots owned by one master.
type SlotRange struct {
	Master int // 1-based master index
	Start  int
	End    int
}

// Size returns the number of slots in the range.
func (r SlotRange) Size() int {
	return r.End - r.Start + 1
}

func (r SlotRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// SlotPartition splits the hash space into contiguous ranges, TotalSlots/masters
// each, with the remainder given to the last master.
//
// Example:
//
//	SlotPartition(3) // [0-5460] [5461-10921] [10922-16383]
func SlotPartition(masters int) []SlotRange {
	if masters < 1 {
		return nil
	}
	per := TotalSlots / masters
	ranges := make([]SlotRange, masters)
	start := 0
	for i := range ranges {
		end := start + per - 1
		if i == masters-1 {
			end = TotalSlots - 1
		}
		ranges[i] = SlotRange{Master: i + 1, Start: start, End: end}
		start = end + 1
	}
	return ranges
}

// ValidateCluster checks the shape of a cluster request.
func ValidateCluster(masters, replicas int) error {
	if masters < MinClusterMasters {
		return fmt.Errorf("cluster needs at least %d masters, got %d", MinClusterMasters, masters)
	}
	if replicas < 0 {
		return fmt.Errorf("replicas per master cannot be negative, got %d", replicas)
	}
	return nil
}

// Endpoint is a node address reachable from inside the instance network.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// ClusterNode is one node of a cluster layout with the wiring it receives.
type ClusterNode struct {
	Endpoint
	Master    int        // 1-based master index this node is or follows
	IsReplica bool
	Slots     *SlotRange // nil for replicas
}

// ClusterLayout assigns slot ranges to masters and a master to every replica.
// masters and replicas are in-network endpoints in plan order; replica j
// (0-based) follows master j/perMaster+1.
//
// Example:
//
//	ClusterLayout(m[:3], r[:3], 1)
//	// m1 0-5460, m2 5461-10921, m3 10922-16383, r1->m1, r2->m2, r3->m3
func ClusterLayout(masters, replicas []Endpoint, perMaster int) []ClusterNode {
	ranges := SlotPartition(len(masters))
	nodes := make([]ClusterNode, 0, len(masters)+len(replicas))
	for i, m := range masters {
		r := ranges[i]
		nodes = append(nodes, ClusterNode{Endpoint: m, Master: i + 1, Slots: &r})
	}
	if perMaster < 1 {
		return nodes
	}
	for j, r := range replicas {
		nodes = append(nodes, ClusterNode{Endpoint: r, Master: j/perMaster + 1, IsReplica: true})
	}
	return nodes
}
