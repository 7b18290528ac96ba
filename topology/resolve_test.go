package topology

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nhbchain/core/protocol"
)

func TestResolveReturnsLiteralIPUnchanged(t *testing.T) {
	r := Resolver{}
	endpoints, err := r.Resolve(context.Background(), "127.0.0.1:6001")
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:6001"}, endpoints)
}

func TestResolveEmptyAddressReturnsNothing(t *testing.T) {
	r := Resolver{}
	endpoints, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, endpoints)
}

func TestResolveMembersSkipsMembersWithoutAddress(t *testing.T) {
	topo := protocol.Topology{
		Members: map[protocol.Key]protocol.Member{
			"alice": {Key: "alice", Address: "10.0.0.1:6001"},
			"bob":   {Key: "bob"},
		},
	}
	out := ResolveMembers(context.Background(), Resolver{}, topo)
	require.Contains(t, out, protocol.Key("alice"))
	require.NotContains(t, out, protocol.Key("bob"))
	require.Equal(t, []string{"10.0.0.1:6001"}, out["alice"])
}

func TestResolverTimeoutDefaultsWhenUnset(t *testing.T) {
	r := Resolver{}
	require.Equal(t, 2*time.Second, r.timeout())

	r.Timeout = 5 * time.Second
	require.Equal(t, 5*time.Second, r.timeout())
}
