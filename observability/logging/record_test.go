package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"nhbchain/core/protocol"
)

func TestMemberAttrMasksNonEmptyAgentSecret(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("member", MemberAttr(protocol.Member{Key: "alice", Address: "10.0.0.1:6001", AgentSecret: []byte("shh")}))

	out := buf.String()
	require.Contains(t, out, RedactedValue)
	require.NotContains(t, out, "736868", "hex-encoded secret bytes must not leak into the log line")
}

func TestMemberAttrLeavesEmptyAgentSecretUnmasked(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("member", MemberAttr(protocol.Member{Key: "bob"}))

	require.NotContains(t, buf.String(), RedactedValue)
}

func TestRecordAttrsIncludesOneGroupPerMember(t *testing.T) {
	r := protocol.TrxRecord{
		TransactionCode: "tx-1",
		SessionCode:     "sess-1",
		Topology: protocol.Topology{
			Members: map[protocol.Key]protocol.Member{
				"alice": {Key: "alice", AgentSecret: []byte("secret-a")},
				"bob":   {Key: "bob"},
			},
		},
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("record", RecordAttrs(r)...)

	out := buf.String()
	require.Contains(t, out, "tx-1")
	require.Contains(t, out, RedactedValue, "alice's agent secret must be masked")
}
