package db

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/coinjoin-engine/internal/transfer"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for coinjoin-engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("coinjoin-engine schema initialized")
	return nil
}

// RecordFinalize appends one row to transfer_audit for a transfer the
// engine just closed via Finalize.
func (s *PostgresStore) RecordFinalize(ctx context.Context, owner [32]byte, amount, totalFees uint64, numHops uint8, recipientCount int) error {
	return s.recordAudit(ctx, owner, "finalized", amount, totalFees, numHops, recipientCount)
}

// RecordRefund appends one row to transfer_audit for a transfer the engine
// just closed via Refund.
func (s *PostgresStore) RecordRefund(ctx context.Context, owner [32]byte, amount, totalFees uint64, numHops uint8) error {
	return s.recordAudit(ctx, owner, "refunded", amount, totalFees, numHops, 1)
}

func (s *PostgresStore) recordAudit(ctx context.Context, owner [32]byte, outcome string, amount, totalFees uint64, numHops uint8, recipientCount int) error {
	sql := `INSERT INTO transfer_audit
		(owner, outcome, amount, total_fees, num_hops, recipient_count, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, sql,
		hex.EncodeToString(owner[:]),
		outcome,
		amount,
		totalFees,
		numHops,
		recipientCount,
		time.Now(),
	)
	return err
}

// AuditEntry is one row of the finalized/refunded transfer ledger.
type AuditEntry struct {
	Owner          string    `json:"owner"`
	Outcome        string    `json:"outcome"`
	Amount         uint64    `json:"amount"`
	TotalFees      uint64    `json:"totalFees"`
	NumHops        uint8     `json:"numHops"`
	RecipientCount int       `json:"recipientCount"`
	ClosedAt       time.Time `json:"closedAt"`
}

// GetAuditLog returns a page of transfer_audit, most recent first.
func (s *PostgresStore) GetAuditLog(ctx context.Context, page, limit int) ([]AuditEntry, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_audit`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT owner, outcome, amount, total_fees, num_hops, recipient_count, closed_at
		FROM transfer_audit
		ORDER BY closed_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Owner, &e.Outcome, &e.Amount, &e.TotalFees, &e.NumHops, &e.RecipientCount, &e.ClosedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, totalCount, nil
}

// RecordConfigUpdate appends one row to governance_config_update_log for
// an accepted ConfigUpdate call.
func (s *PostgresStore) RecordConfigUpdate(ctx context.Context, owner [32]byte, cfg transfer.Config) error {
	sql := `INSERT INTO governance_config_update_log
		(owner, num_hops, real_splits, fake_splits, reserve_bps, fee_bps, cu_budget_hop, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, sql,
		hex.EncodeToString(owner[:]),
		cfg.NumHops,
		cfg.RealSplits,
		cfg.FakeSplits,
		cfg.ReserveBps,
		cfg.FeeBps,
		cfg.CUBudgetPerHop,
		time.Now(),
	)
	return err
}

// GetPool exposes the connection pool for the shadow auditor and other
// subsystems that issue their own queries (e.g. validator_drift).
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
