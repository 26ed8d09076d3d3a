package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/coinjoin-engine/internal/api"
	"github.com/rawblock/coinjoin-engine/internal/bloom"
	"github.com/rawblock/coinjoin-engine/internal/db"
	"github.com/rawblock/coinjoin-engine/internal/ledger"
	"github.com/rawblock/coinjoin-engine/internal/proof"
	"github.com/rawblock/coinjoin-engine/internal/shadow"
	"github.com/rawblock/coinjoin-engine/internal/transfer"
)

func main() {
	log.Println("Starting coinjoin-engine core node...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	dbUrl := requireEnv("DATABASE_URL")
	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: failed to connect to PostgreSQL, continuing without audit/drift persistence: %v", err)
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: db schema init failed: %v", err)
		}
	}

	ledgerPath := getEnvOrDefault("LEDGER_PATH", "./data/ledger.db")
	store, err := ledger.Open(ledgerPath)
	if err != nil {
		log.Fatalf("FATAL: failed to open ledger at %s: %v", ledgerPath, err)
	}
	defer store.Close()

	programID, err := parseAddressEnv("PROGRAM_ID")
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	treasury, err := parseAddressEnv("TREASURY_ADDRESS")
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	engine := transfer.NewEngine(store, proof.NewReferenceVerifier(), programID)
	engine.Treasury = treasury
	engine.Governance = loadGovernanceAuthorities()

	// Setup WebSocket Hub for transfer lifecycle events.
	wsHub := api.NewHub()
	go wsHub.Run()

	var auditor *shadow.DualPathAuditor
	if dbConn != nil {
		snapshotID := parseInt64OrDefault("SHADOW_SNAPSHOT_ID", 1)
		auditor = shadow.NewDualPathAuditor(dbConn.GetPool(), snapshotID)
		go runPeriodicAudits(auditor)
	}

	r := api.SetupRouter(engine, dbConn, auditor, wsHub)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("coinjoin-engine listening on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runPeriodicAudits drives DualPathAuditor.RunSyntheticAudit on a fixed
// interval against the deployment's default split composition, so
// bloom-filter drift is caught between real transfers rather than only
// when one happens to exercise a colliding position.
func runPeriodicAudits(auditor *shadow.DualPathAuditor) {
	interval := parseDurationOrDefault("SHADOW_AUDIT_INTERVAL", 10*time.Minute)
	cfg := bloom.Config{
		NumHops:    int(parseInt64OrDefault("SHADOW_AUDIT_NUM_HOPS", 8)),
		RealSplits: int(parseInt64OrDefault("SHADOW_AUDIT_REAL_SPLITS", 24)),
		FakeSplits: int(parseInt64OrDefault("SHADOW_AUDIT_FAKE_SPLITS", 24)),
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		var challenge [32]byte
		if _, err := rand.Read(challenge[:]); err != nil {
			log.Printf("[shadow] failed to sample challenge: %v", err)
			continue
		}
		if _, err := auditor.RunSyntheticAudit(context.Background(), cfg, challenge); err != nil {
			log.Printf("[shadow] synthetic audit failed: %v", err)
		}
	}
}

func loadGovernanceAuthorities() []proof.GovernanceAuthority {
	raw := os.Getenv("GOVERNANCE_PUBLIC_KEYS")
	if raw == "" {
		log.Println("WARNING: GOVERNANCE_PUBLIC_KEYS is not set — config_update will always reject (no signers configured)")
		return nil
	}
	parts := strings.Split(raw, ",")
	authorities := make([]proof.GovernanceAuthority, 0, len(parts))
	for _, p := range parts {
		b, err := hex.DecodeString(strings.TrimSpace(p))
		if err != nil || len(b) != 48 {
			log.Fatalf("FATAL: invalid governance public key %q: must be 48 bytes hex", p)
		}
		var authority proof.GovernanceAuthority
		copy(authority.PublicKey[:], b)
		authorities = append(authorities, authority)
	}
	return authorities
}

func parseAddressEnv(key string) ([32]byte, error) {
	var out [32]byte
	val := requireEnv(key)
	b, err := hex.DecodeString(val)
	if err != nil || len(b) != 32 {
		return out, &invalidEnvError{key: key, reason: "must be 32 bytes hex"}
	}
	copy(out[:], b)
	return out, nil
}

type invalidEnvError struct {
	key    string
	reason string
}

func (e *invalidEnvError) Error() string {
	return e.key + ": " + e.reason
}

// requireEnv reads a required environment variable and exits if it is not
// set, preventing the binary from starting with missing critical config.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseInt64OrDefault(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseDurationOrDefault(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
