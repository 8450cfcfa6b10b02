// Package topology reconciles the set of physically discovered slaves
// against the expected network configuration and drives the redundancy
// state machine, the way the teacher's network.go reconciles NMT heartbeat
// state against a configured node list — generalized here to EtherCAT's
// position-based auto-increment discovery and dual-ring redundancy
// (spec.md §4.7).
package topology

import (
	"sort"

	"github.com/samsamfire/ethercat-master/transport"
)

// SlaveInfo is one reconciled slave's identity and presence.
type SlaveInfo struct {
	Position    uint16
	Online      bool
	VendorId    uint32
	ProductCode uint32
}

// Snapshot is one generation of the reconciled topology.
type Snapshot struct {
	Generation uint64
	Slaves     map[uint16]SlaveInfo
	Redundant  bool
}

// ChangeSet is the diff between two consecutive snapshots.
type ChangeSet struct {
	Added             []uint16
	Removed           []uint16
	Updated           []uint16
	RedundancyChanged bool
}

// Changed reports whether the topology itself (as opposed to redundancy
// link health) differs from the previous snapshot.
func (cs ChangeSet) Changed() bool {
	return len(cs.Added) > 0 || len(cs.Removed) > 0 || len(cs.Updated) > 0
}

// Reconciler walks the physical topology via Transport.DiscoverTopology and
// diffs it against the previous snapshot on every Refresh call.
//
// Position 0 failing to answer the discovery scan is not by itself treated
// as an error: a cold-started bus commonly drops the first auto-increment
// read before the ESC's mailbox/FMMU state settles, so a silent miss at
// position 0 is retried on the next Refresh rather than surfaced as a
// topology change. This mirrors the original implementation's discovery
// loop, which only raises once a position that previously answered goes
// silent.
type Reconciler struct {
	t            transport.Transport
	maxPositions int

	current Snapshot
}

// New returns a Reconciler with an empty generation-0 snapshot.
func New(t transport.Transport, maxPositions int) *Reconciler {
	return &Reconciler{
		t:            t,
		maxPositions: maxPositions,
		current:      Snapshot{Slaves: map[uint16]SlaveInfo{}},
	}
}

// Current returns the most recent snapshot.
func (r *Reconciler) Current() Snapshot {
	return r.current
}

// Refresh re-discovers the physical topology and returns the new snapshot
// along with the change set relative to the previous one.
func (r *Reconciler) Refresh() (Snapshot, ChangeSet, error) {
	probes, err := r.t.DiscoverTopology(r.maxPositions)
	if err != nil {
		return r.current, ChangeSet{}, err
	}

	next := Snapshot{
		Generation: r.current.Generation,
		Slaves:     map[uint16]SlaveInfo{},
		Redundant:  r.t.IsRedundancyLinkHealthy(),
	}
	for _, p := range probes {
		if !p.Online {
			continue
		}
		next.Slaves[p.Position] = SlaveInfo{
			Position:    p.Position,
			Online:      true,
			VendorId:    p.VendorId,
			ProductCode: p.ProductCode,
		}
	}

	changes := diff(r.current, next)
	if changes.Changed() || changes.RedundancyChanged {
		next.Generation = r.current.Generation + 1
	}
	r.current = next
	return next, changes, nil
}

func diff(prev, next Snapshot) ChangeSet {
	var cs ChangeSet
	for pos, info := range next.Slaves {
		old, existed := prev.Slaves[pos]
		if !existed {
			cs.Added = append(cs.Added, pos)
			continue
		}
		if old != info {
			cs.Updated = append(cs.Updated, pos)
		}
	}
	for pos := range prev.Slaves {
		if _, ok := next.Slaves[pos]; !ok {
			cs.Removed = append(cs.Removed, pos)
		}
	}
	sort.Slice(cs.Added, func(i, j int) bool { return cs.Added[i] < cs.Added[j] })
	sort.Slice(cs.Removed, func(i, j int) bool { return cs.Removed[i] < cs.Removed[j] })
	sort.Slice(cs.Updated, func(i, j int) bool { return cs.Updated[i] < cs.Updated[j] })
	cs.RedundancyChanged = prev.Redundant != next.Redundant
	return cs
}

// MissingSlaves returns the positions present in expected but absent from
// snapshot.
func MissingSlaves(snapshot Snapshot, expected []uint16) []uint16 {
	var missing []uint16
	for _, pos := range expected {
		if _, ok := snapshot.Slaves[pos]; !ok {
			missing = append(missing, pos)
		}
	}
	return missing
}

// HotConnectedSlaves returns the positions present in snapshot but absent
// from expected — slaves that joined the bus without being configured.
func HotConnectedSlaves(snapshot Snapshot, expected []uint16) []uint16 {
	expectedSet := make(map[uint16]struct{}, len(expected))
	for _, pos := range expected {
		expectedSet[pos] = struct{}{}
	}
	var hot []uint16
	for pos := range snapshot.Slaves {
		if _, ok := expectedSet[pos]; !ok {
			hot = append(hot, pos)
		}
	}
	sort.Slice(hot, func(i, j int) bool { return hot[i] < hot[j] })
	return hot
}
