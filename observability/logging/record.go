package logging

import (
	"encoding/hex"
	"log/slog"

	"nhbchain/core/protocol"
)

// MemberAttr builds a structured log group for a topology member, routing
// AgentSecret through MaskField so it never reaches a log line in the
// clear: AgentSecret is opaque to the core and agent-local, per
// protocol.Member's doc.
func MemberAttr(m protocol.Member) slog.Attr {
	secret := ""
	if len(m.AgentSecret) > 0 {
		secret = hex.EncodeToString(m.AgentSecret)
	}
	return slog.Group("member",
		slog.String("key", string(m.Key)),
		slog.String("address", m.Address),
		MaskField("agentSecret", secret),
	)
}

// RecordAttrs builds the structured log fields for a TrxRecord: identifiers
// and counts safe to log verbatim, plus one member group per topology
// member with AgentSecret masked.
func RecordAttrs(r protocol.TrxRecord) []any {
	members := make([]any, 0, len(r.Topology.Members))
	for _, key := range r.Topology.SortedMemberKeys() {
		members = append(members, MemberAttr(r.Topology.Members[key]))
	}
	return []any{
		slog.String("transactionCode", r.TransactionCode),
		slog.String("sessionCode", r.SessionCode),
		slog.Int("promiseCount", r.Promises.Len()),
		slog.Int("commitCount", r.Commits.Len()),
		slog.Group("topology", members...),
	}
}
