package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nhbchain/core/protocol"
)

// transactionRow is the gorm model backing the transaction table: one row
// per transactionCode holding the latest merged wire envelope.
type transactionRow struct {
	TransactionCode string `gorm:"primaryKey"`
	Wire            []byte
	UpdatedAt       time.Time
}

// peerRecordRow tracks the last-known record observed from a peer for a
// given transaction.
type peerRecordRow struct {
	PeerKey         string `gorm:"primaryKey"`
	TransactionCode string `gorm:"primaryKey"`
	Wire            []byte
	UpdatedAt       time.Time
}

// invalidLogRow is one append-only entry of the invalid-record sink.
type invalidLogRow struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	TransactionCode string
	Wire            []byte
	Error           string
	CreatedAt       time.Time
}

// SQLStore implements protocol.Storage atop gorm, giving hosts that want
// relational queries over invalid-record history and peer-record audit
// trails a backend beyond the KVStore's plain key-value model. Per-
// transactionCode serialization (spec §5) is provided by each write running
// inside its own transaction with a row lock on the target transactionCode.
type SQLStore struct {
	db     *gorm.DB
	pusher Pusher
}

// OpenPostgresStore opens (and migrates) a SQLStore backed by PostgreSQL.
func OpenPostgresStore(dsn string, pusher Pusher) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	return newSQLStore(db, pusher)
}

// OpenSQLiteStore opens (and migrates) a SQLStore backed by an embedded
// SQLite database at path, for single-node deployments that want
// relational queries without a separate database server.
func OpenSQLiteStore(path string, pusher Pusher) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	return newSQLStore(db, pusher)
}

func newSQLStore(db *gorm.DB, pusher Pusher) (*SQLStore, error) {
	if err := db.AutoMigrate(&transactionRow{}, &peerRecordRow{}, &invalidLogRow{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	if pusher == nil {
		pusher = NoopPusher{}
	}
	return &SQLStore{db: db, pusher: pusher}, nil
}

var _ protocol.Storage = (*SQLStore)(nil)

func (s *SQLStore) GetTransaction(ctx context.Context, transactionCode string) (*protocol.TrxRecord, bool, error) {
	var row transactionRow
	err := s.db.WithContext(ctx).First(&row, "transaction_code = ?", transactionCode).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: get transaction: %w", err)
	}
	rec, err := protocol.UnmarshalWire(row.Wire)
	if err != nil {
		return nil, false, fmt.Errorf("storage: decode transaction %s: %w", transactionCode, err)
	}
	return &rec, true, nil
}

func (s *SQLStore) PutTransaction(ctx context.Context, record protocol.TrxRecord) error {
	wire, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("storage: encode transaction: %w", err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := transactionRow{TransactionCode: record.TransactionCode, Wire: wire, UpdatedAt: time.Now()}
		return tx.Save(&row).Error
	})
}

func (s *SQLStore) SetPeerRecord(ctx context.Context, peerKey protocol.Key, record protocol.TrxRecord) error {
	wire, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("storage: encode peer record: %w", err)
	}
	row := peerRecordRow{
		PeerKey:         string(peerKey),
		TransactionCode: record.TransactionCode,
		Wire:            wire,
		UpdatedAt:       time.Now(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLStore) GetPeerRecord(ctx context.Context, peerKey protocol.Key, transactionCode string) (*protocol.TrxRecord, bool, error) {
	var row peerRecordRow
	err := s.db.WithContext(ctx).First(&row, "peer_key = ? AND transaction_code = ?", string(peerKey), transactionCode).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: get peer record: %w", err)
	}
	rec, err := protocol.UnmarshalWire(row.Wire)
	if err != nil {
		return nil, false, fmt.Errorf("storage: decode peer record: %w", err)
	}
	return &rec, true, nil
}

func (s *SQLStore) PushPeerRecord(ctx context.Context, peerKey protocol.Key, record protocol.TrxRecord) error {
	return s.pusher.PushPeerRecord(ctx, peerKey, record)
}

func (s *SQLStore) LogInvalid(ctx context.Context, record protocol.TrxRecord, cause error) error {
	wire, err := record.MarshalWire()
	if err != nil {
		return fmt.Errorf("storage: encode invalid record: %w", err)
	}
	row := invalidLogRow{TransactionCode: record.TransactionCode, Wire: wire, Error: cause.Error(), CreatedAt: time.Now()}
	return s.db.WithContext(ctx).Create(&row).Error
}
