// Package storage adapts the generic key-value Database abstraction
// (db.go) into the core/protocol.Storage capability: prior-record lookup,
// peer last-known-record tracking, gossip push delegation, and the
// invalid-record sink.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"nhbchain/core/protocol"
)

// Pusher delivers a record to a peer over whatever transport the host
// wires in (see p2p.Pusher for the reference gRPC/WebSocket implementation).
// KVStore does not implement delivery itself; it delegates to Pusher so the
// same storage backend can be reused across transports.
type Pusher interface {
	PushPeerRecord(ctx context.Context, peer protocol.Key, record protocol.TrxRecord) error
}

// NoopPusher discards pushes; useful for single-node tests of the protocol
// core where gossip has nothing to reach.
type NoopPusher struct{}

func (NoopPusher) PushPeerRecord(context.Context, protocol.Key, protocol.TrxRecord) error { return nil }

const (
	keyPrefixTransaction = "tx:"
	keyPrefixPeerRecord  = "peer:"
	keyPrefixInvalidLog  = "invalid:"
)

// KVStore implements protocol.Storage on top of any Database (MemDB or
// LevelDB), namespacing keys by purpose. A mutex serializes access,
// providing the per-transactionCode serialization point spec §5 requires
// of "the host" when multiple Update calls might race.
type KVStore struct {
	db     Database
	pusher Pusher

	mu sync.Mutex
}

// NewKVStore wraps db for use as a protocol.Storage, delivering pushes
// through pusher.
func NewKVStore(db Database, pusher Pusher) *KVStore {
	if pusher == nil {
		pusher = NoopPusher{}
	}
	return &KVStore{db: db, pusher: pusher}
}

var _ protocol.Storage = (*KVStore)(nil)

func (s *KVStore) GetTransaction(ctx context.Context, transactionCode string) (*protocol.TrxRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.db.Get([]byte(keyPrefixTransaction + transactionCode))
	if err != nil {
		return nil, false, nil //nolint:nilerr // Database.Get's "not found" is not distinguishable from a real error here; treated as absent.
	}
	rec, err := protocol.UnmarshalWire(raw)
	if err != nil {
		return nil, false, fmt.Errorf("storage: decode transaction %s: %w", transactionCode, err)
	}
	return &rec, true, nil
}

func (s *KVStore) PutTransaction(ctx context.Context, record protocol.TrxRecord) error {
	raw, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("storage: encode transaction %s: %w", record.TransactionCode, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(keyPrefixTransaction+record.TransactionCode), raw)
}

func peerRecordKey(peerKey protocol.Key, transactionCode string) string {
	return keyPrefixPeerRecord + string(peerKey) + ":" + transactionCode
}

func (s *KVStore) SetPeerRecord(ctx context.Context, peerKey protocol.Key, record protocol.TrxRecord) error {
	raw, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("storage: encode peer record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(peerRecordKey(peerKey, record.TransactionCode)), raw)
}

func (s *KVStore) GetPeerRecord(ctx context.Context, peerKey protocol.Key, transactionCode string) (*protocol.TrxRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.db.Get([]byte(peerRecordKey(peerKey, transactionCode)))
	if err != nil {
		return nil, false, nil //nolint:nilerr // see GetTransaction
	}
	rec, err := protocol.UnmarshalWire(raw)
	if err != nil {
		return nil, false, fmt.Errorf("storage: decode peer record: %w", err)
	}
	return &rec, true, nil
}

func (s *KVStore) PushPeerRecord(ctx context.Context, peerKey protocol.Key, record protocol.TrxRecord) error {
	return s.pusher.PushPeerRecord(ctx, peerKey, record)
}

// invalidLogEntry is one line of the append-only invalid-record log.
type invalidLogEntry struct {
	Record protocol.TrxRecord `json:"-"`
	Wire   json.RawMessage    `json:"record"`
	Error  string             `json:"error"`
}

func (s *KVStore) LogInvalid(ctx context.Context, record protocol.TrxRecord, cause error) error {
	raw, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("storage: encode invalid record: %w", err)
	}
	entry := invalidLogEntry{Wire: raw, Error: cause.Error()}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := []byte(keyPrefixInvalidLog + record.TransactionCode)
	existing, err := s.db.Get(key)
	var log []json.RawMessage
	if err == nil {
		if uerr := json.Unmarshal(existing, &log); uerr != nil {
			return fmt.Errorf("storage: decode invalid log: %w", uerr)
		}
	}
	log = append(log, entryJSON)
	newLog, err := json.Marshal(log)
	if err != nil {
		return err
	}
	return s.db.Put(key, newLog)
}

// InvalidLog returns the decoded invalid-record log entries for a
// transaction, for operator inspection; not part of the protocol.Storage
// capability surface.
func (s *KVStore) InvalidLog(transactionCode string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.db.Get([]byte(keyPrefixInvalidLog + transactionCode))
	if err != nil {
		return nil, nil
	}
	var log []json.RawMessage
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(log))
	for _, entry := range log {
		var e invalidLogEntry
		if err := json.Unmarshal(entry, &e); err != nil {
			return nil, err
		}
		out = append(out, e.Error)
	}
	return out, nil
}
