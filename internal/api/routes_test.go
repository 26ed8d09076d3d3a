package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/coinjoin-engine/internal/bloom"
	"github.com/rawblock/coinjoin-engine/internal/ledger"
	"github.com/rawblock/coinjoin-engine/internal/pda"
	"github.com/rawblock/coinjoin-engine/internal/proof"
	"github.com/rawblock/coinjoin-engine/internal/transfer"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, [32]byte) {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var programID [32]byte
	programID[0] = 0xAA
	engine := transfer.NewEngine(store, proof.NewReferenceVerifier(), programID)
	engine.Treasury[0] = 0xFE

	router := SetupRouter(engine, nil, nil, nil)
	return router, programID
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointReportsOperational(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestInitializeRejectsMalformedOwnerHex(t *testing.T) {
	router, _ := newTestRouter(t)
	req := models.InitializeRequest{Owner: "not-hex", Amount: 1000}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/transfers/initialize", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInitializeExecuteHopFinalizeHappyPath(t *testing.T) {
	router, programID := newTestRouter(t)

	var owner, seed, recipient [32]byte
	owner[0] = 0x01
	seed[0] = 0x02
	recipient[0] = 0x10

	cfg := transfer.Config{
		NumHops:        1,
		RealSplits:     2,
		FakeSplits:     2,
		ReserveBps:     0,
		FeeBps:         200,
		CUBudgetPerHop: transfer.MinComputeUnitFloor + 1000,
	}

	var challenge proof.Challenge
	challenge[0] = 0x42
	var commitments [8]proof.Commitment
	rangeProof := proof.BuildRangeProof(commitments)
	aggProof := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{})
	var merkleRoot [32]byte
	merkleRoot[0] = 0x77

	commitmentStrs := make([]string, 8)
	for i, c := range commitments {
		commitmentStrs[i] = hex.EncodeToString(c[:])
	}

	initReq := models.InitializeRequest{
		Owner:          hex.EncodeToString(owner[:]),
		Amount:         1_000_000_000,
		Seed:           hex.EncodeToString(seed[:]),
		AggregateProof: hex.EncodeToString(aggProof[:]),
		RangeProof:     hex.EncodeToString(rangeProof[:]),
		Challenge:      hex.EncodeToString(challenge[:]),
		Commitments:    commitmentStrs,
		MerkleRoot:     hex.EncodeToString(merkleRoot[:]),
		Config: models.ConfigDTO{
			NumHops:        cfg.NumHops,
			RealSplits:     cfg.RealSplits,
			FakeSplits:     cfg.FakeSplits,
			ReserveBps:     cfg.ReserveBps,
			FeeBps:         cfg.FeeBps,
			CUBudgetPerHop: cfg.CUBudgetPerHop,
		},
		Recipient: hex.EncodeToString(recipient[:]),
		Now:       1000,
	}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/transfers/initialize", initReq)
	if rec.Code != http.StatusCreated {
		t.Fatalf("initialize status = %d, body = %s", rec.Code, rec.Body.String())
	}

	filterCfg := bloom.Config{NumHops: int(cfg.NumHops), RealSplits: int(cfg.RealSplits), FakeSplits: int(cfg.FakeSplits)}
	filter := bloom.Generate(filterCfg, challenge)

	total := int(cfg.RealSplits) + int(cfg.FakeSplits)
	accounts := make([]models.SplitAccountDTO, total)
	for split := 0; split < total; split++ {
		if bloom.Contains(filter, 0, uint8(split)) {
			var arbitrary pda.Address
			arbitrary[0] = 0xAB
			arbitrary[1] = byte(split)
			accounts[split] = models.SplitAccountDTO{Candidate: hex.EncodeToString(arbitrary[:])}
		} else {
			derived, _ := pda.Derive(programID, seed, 0, uint8(split))
			accounts[split] = models.SplitAccountDTO{Candidate: hex.EncodeToString(derived[:])}
		}
	}

	hopAgg := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{BloomFilter: filter})
	hopReq := models.ExecuteHopRequest{
		HopIndex:   0,
		Proof:      hex.EncodeToString(hopAgg[:]),
		RangeProof: hex.EncodeToString(rangeProof[:]),
		Accounts:   accounts,
	}
	ownerHex := hex.EncodeToString(owner[:])
	rec = doJSON(t, router, http.MethodPost, "/api/v1/transfers/"+ownerHex+"/hop", hopReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute_hop status = %d, body = %s", rec.Code, rec.Body.String())
	}

	finAgg := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{BloomFilter: filter})
	finalizeReq := models.FinalizeRequest{
		Proof:            hex.EncodeToString(finAgg[:]),
		MerkleLeaf:       hex.EncodeToString(merkleRoot[:]),
		MerklePath:       nil,
		MerkleDirections: nil,
	}
	rec = doJSON(t, router, http.MethodPost, "/api/v1/transfers/"+ownerHex+"/finalize", finalizeReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAuditEndpointReports503WithoutDB(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/audit", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
