package payloadcodec

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nhbchain/core/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	transfer := Transfer{
		Asset:  "NHB",
		Amount: uint256.NewInt(1_000_000),
		From:   protocol.Key("alice"),
		To:     protocol.Key("bob"),
		Memo:   "invoice #42",
	}

	raw, err := Encode(transfer)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, transfer.Asset, decoded.Asset)
	require.Equal(t, 0, transfer.Amount.Cmp(decoded.Amount))
	require.Equal(t, transfer.From, decoded.From)
	require.Equal(t, transfer.To, decoded.To)
	require.Equal(t, transfer.Memo, decoded.Memo)
}

func TestEncodeRejectsNilAmount(t *testing.T) {
	_, err := Encode(Transfer{Asset: "NHB"})
	require.Error(t, err)
}

func TestEncodeAmountLargerThanUint64(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	transfer := Transfer{Asset: "ZNHB", Amount: huge, From: "a", To: "b"}

	raw, err := Encode(transfer)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, 0, huge.Cmp(decoded.Amount))
}

func TestEncodedPayloadSurvivesProtocolCanonicalization(t *testing.T) {
	transfer := Transfer{Asset: "NHB", Amount: uint256.NewInt(42), From: "a", To: "b"}
	raw, err := Encode(transfer)
	require.NoError(t, err)

	record := protocol.TrxRecord{TransactionCode: "tx", SessionCode: "sess", Payload: raw}
	d1, err := protocol.PromiseDigest(record)
	require.NoError(t, err)
	d2, err := protocol.PromiseDigest(record)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestDecodeRejectsMalformedAmount(t *testing.T) {
	_, err := Decode([]byte(`{"asset":"NHB","amount":"not-a-number","from":"a","to":"b"}`))
	require.Error(t, err)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
}
