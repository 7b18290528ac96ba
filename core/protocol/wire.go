package protocol

import "encoding/json"

// wireMember/wireLink/wireTopology/wireSignature/wireRecord mirror the
// canonical wire representation from spec §6: signature type is a signed
// integer with the fixed {promise:1, nopromise:-1, commit:2, nocommit:-2}
// mapping, timestamps are milliseconds since epoch, signature and secret
// values are base64 (handled by json's native []byte<->base64 behavior).

type wireMember struct {
	Key         string `json:"key"`
	Address     string `json:"address,omitempty"`
	AgentSecret []byte `json:"agentSecret,omitempty"`
	Roles       uint8  `json:"roles"`
}

type wireLink struct {
	SourceKey string `json:"sourceKey"`
	TargetKey string `json:"targetKey"`
	Nonce     string `json:"nonce"`
	Terms     string `json:"terms"`
}

type wireSignature struct {
	Type  int8   `json:"type"`
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type wireRecord struct {
	SchemaVersion   uint8           `json:"schemaVersion"`
	TransactionCode string          `json:"transactionCode"`
	SessionCode     string          `json:"sessionCode"`
	Payload         json.RawMessage `json:"payload"`
	Members         []wireMember    `json:"members"`
	Links           []wireLink      `json:"links"`
	Start           int64           `json:"start"`
	PromisesDue     int64           `json:"promisesDue"`
	CommitsDue      int64           `json:"commitsDue"`
	Promises        []wireSignature `json:"promises"`
	Commits         []wireSignature `json:"commits"`
}

// SchemaVersion is the wire envelope version. It is not part of any digest.
const SchemaVersion uint8 = 1

// MarshalWire encodes the record into its canonical wire JSON envelope.
func (r TrxRecord) MarshalWire() ([]byte, error) {
	members := make([]wireMember, 0, len(r.Topology.Members))
	for _, key := range r.Topology.SortedMemberKeys() {
		m := r.Topology.Members[key]
		members = append(members, wireMember{
			Key:         string(key),
			Address:     m.Address,
			AgentSecret: m.AgentSecret,
			Roles:       uint8(m.Roles),
		})
	}
	links := make([]wireLink, 0, len(r.Topology.Links))
	for _, l := range r.Topology.Links {
		links = append(links, wireLink{
			SourceKey: string(l.SourceKey),
			TargetKey: string(l.TargetKey),
			Nonce:     l.Nonce,
			Terms:     l.Terms,
		})
	}
	wr := wireRecord{
		SchemaVersion:   SchemaVersion,
		TransactionCode: r.TransactionCode,
		SessionCode:     r.SessionCode,
		Payload:         json.RawMessage(r.Payload),
		Members:         members,
		Links:           links,
		Start:           r.Start,
		PromisesDue:     r.PromisesDue,
		CommitsDue:      r.CommitsDue,
		Promises:        wireSignatures(r.Promises),
		Commits:         wireSignatures(r.Commits),
	}
	if len(wr.Payload) == 0 {
		wr.Payload = json.RawMessage("null")
	}
	return json.Marshal(wr)
}

func wireSignatures(set SignatureSet) []wireSignature {
	sigs := set.Ordered()
	out := make([]wireSignature, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, wireSignature{Type: int8(s.Type), Key: string(s.Key), Value: s.Value})
	}
	return out
}

// UnmarshalWire decodes a canonical wire JSON envelope into a TrxRecord.
func UnmarshalWire(data []byte) (TrxRecord, error) {
	var wr wireRecord
	if err := json.Unmarshal(data, &wr); err != nil {
		return TrxRecord{}, err
	}
	members := make(map[Key]Member, len(wr.Members))
	for _, m := range wr.Members {
		members[Key(m.Key)] = Member{
			Key:         Key(m.Key),
			Address:     m.Address,
			AgentSecret: m.AgentSecret,
			Roles:       RoleSet(m.Roles),
		}
	}
	links := make([]Link, 0, len(wr.Links))
	for _, l := range wr.Links {
		links = append(links, Link{SourceKey: Key(l.SourceKey), TargetKey: Key(l.TargetKey), Nonce: l.Nonce, Terms: l.Terms})
	}
	return TrxRecord{
		TransactionCode: wr.TransactionCode,
		SessionCode:     wr.SessionCode,
		Payload:         []byte(wr.Payload),
		Topology:        Topology{Links: links, Members: members},
		Start:           wr.Start,
		PromisesDue:     wr.PromisesDue,
		CommitsDue:      wr.CommitsDue,
		Promises:        NewSignatureSet(unwireSignatures(wr.Promises)),
		Commits:         NewSignatureSet(unwireSignatures(wr.Commits)),
	}, nil
}

func unwireSignatures(sigs []wireSignature) []Signature {
	out := make([]Signature, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, Signature{Type: SigType(s.Type), Key: Key(s.Key), Value: s.Value})
	}
	return out
}
