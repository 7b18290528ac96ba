// Package payloadcodec provides a reference opaque-payload shape for
// TrxRecord.Payload: a monetary value transfer between two participant
// keys, encoded as canonical JSON so it round-trips through
// core/protocol's digest functions unchanged. Hosts are free to use any
// other payload shape; this one exists so the protocol can be exercised
// end to end without inventing an ad hoc wire format per caller.
package payloadcodec

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"nhbchain/core/protocol"
)

// Transfer is a single asset movement from one participant to another,
// the payload every session in this reference wiring carries.
type Transfer struct {
	Asset  string
	Amount *uint256.Int
	From   protocol.Key
	To     protocol.Key
	Memo   string
}

// wireTransfer is Transfer's JSON shape. Amount is carried as its decimal
// string form, matching uint256.Int's (Un)MarshalJSON convention, so the
// payload survives canonicalJSON's decode-into-interface{} round trip as
// an ordinary JSON string rather than a Go-specific type.
type wireTransfer struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	From   string `json:"from"`
	To     string `json:"to"`
	Memo   string `json:"memo,omitempty"`
}

// Encode marshals t into the canonical-JSON bytes suitable for
// TrxRecord.Payload.
func Encode(t Transfer) ([]byte, error) {
	if t.Amount == nil {
		return nil, fmt.Errorf("payloadcodec: nil amount")
	}
	w := wireTransfer{
		Asset:  t.Asset,
		Amount: t.Amount.Dec(),
		From:   string(t.From),
		To:     string(t.To),
		Memo:   t.Memo,
	}
	return json.Marshal(w)
}

// Decode parses a TrxRecord.Payload produced by Encode back into a
// Transfer.
func Decode(raw []byte) (Transfer, error) {
	var w wireTransfer
	if err := json.Unmarshal(raw, &w); err != nil {
		return Transfer{}, fmt.Errorf("payloadcodec: decode: %w", err)
	}
	amount, err := uint256.FromDecimal(w.Amount)
	if err != nil {
		return Transfer{}, fmt.Errorf("payloadcodec: amount %q: %w", w.Amount, err)
	}
	return Transfer{
		Asset:  w.Asset,
		Amount: amount,
		From:   protocol.Key(w.From),
		To:     protocol.Key(w.To),
		Memo:   w.Memo,
	}, nil
}
