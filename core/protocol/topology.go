package protocol

// TopologyView derives the sets the core needs from a Topology without
// mutating it: participants, referees, and (given a node's own key) the
// reachable peer set for gossip.
type TopologyView struct {
	topology Topology
}

// NewTopologyView wraps a Topology for derivation.
func NewTopologyView(t Topology) TopologyView {
	return TopologyView{topology: t}
}

// Participants returns the set of member keys whose role set contains
// RoleParticipant.
func (v TopologyView) Participants() map[Key]struct{} {
	return v.keysWithRole(RoleParticipant)
}

// Referees returns the set of member keys whose role set contains
// RoleReferee.
func (v TopologyView) Referees() map[Key]struct{} {
	return v.keysWithRole(RoleReferee)
}

func (v TopologyView) keysWithRole(r Role) map[Key]struct{} {
	out := make(map[Key]struct{})
	for k, m := range v.topology.Members {
		if m.Roles.Has(r) {
			out[k] = struct{}{}
		}
	}
	return out
}

// ReachablePeers returns the union of (a) every member whose Address is
// non-empty (directly addressable) and (b) the other endpoint of every
// link incident to ourKey, excluding ourKey itself. The two contributing
// sources may overlap; the result is deduplicated.
func (v TopologyView) ReachablePeers(ourKey Key) []Key {
	reachable := make(map[Key]struct{})
	for k, m := range v.topology.Members {
		if k == ourKey {
			continue
		}
		if m.Address != "" {
			reachable[k] = struct{}{}
		}
	}
	for _, link := range v.topology.Links {
		switch ourKey {
		case link.SourceKey:
			if link.TargetKey != ourKey {
				reachable[link.TargetKey] = struct{}{}
			}
		case link.TargetKey:
			if link.SourceKey != ourKey {
				reachable[link.SourceKey] = struct{}{}
			}
		}
	}
	out := make([]Key, 0, len(reachable))
	for k := range reachable {
		out = append(out, k)
	}
	return out
}
