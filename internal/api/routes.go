package api

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/coinjoin-engine/internal/db"
	"github.com/rawblock/coinjoin-engine/internal/metrics"
	"github.com/rawblock/coinjoin-engine/internal/proof"
	"github.com/rawblock/coinjoin-engine/internal/shadow"
	"github.com/rawblock/coinjoin-engine/internal/transfer"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

// APIHandler wires the seven transfer entry points, the audit log, and the
// shadow auditor's drift report onto HTTP.
type APIHandler struct {
	engine  *transfer.Engine
	dbStore *db.PostgresStore
	auditor *shadow.DualPathAuditor
	wsHub   *Hub
}

// SetupRouter builds the Gin engine: CORS, a public health/stream/audit
// surface, and an authenticated+rate-limited surface for the entry points
// that move value or change a transfer's config.
func SetupRouter(engine *transfer.Engine, dbStore *db.PostgresStore, auditor *shadow.DualPathAuditor, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var.
	// Production: ALLOWED_ORIGINS=https://example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		engine:  engine,
		dbStore: dbStore,
		auditor: auditor,
		wsHub:   wsHub,
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		if wsHub != nil {
			pub.GET("/stream", wsHub.Subscribe)
		}
		pub.GET("/audit", handler.handleGetAuditLog)
		pub.GET("/drift", handler.handleGetDriftReport)
		pub.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	auth := r.Group("/api/v1/transfers")
	auth.Use(AuthMiddleware())
	auth.Use(rateLimitMiddleware())
	{
		auth.POST("/initialize", handler.handleInitialize)
		auth.POST("/:owner/hop", handler.handleExecuteHop)
		auth.POST("/:owner/batch-hop", handler.handleExecuteBatchHop)
		auth.POST("/:owner/finalize", handler.handleFinalize)
		auth.POST("/:owner/refund", handler.handleRefund)
		auth.POST("/:owner/reveal-fake", handler.handleRevealFake)
		auth.POST("/:owner/config", handler.handleConfigUpdate)
	}

	return r
}

// rateLimitMiddleware picks the rate limiter backing the authenticated
// surface. With REDIS_ADDR set it dials Redis so the limit holds across a
// horizontally-scaled fleet of API instances; otherwise it falls back to
// RateLimiter's in-memory buckets, which is all a single instance needs.
func rateLimitMiddleware() gin.HandlerFunc {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client, err := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			log.Printf("REDIS_ADDR set but dial failed, falling back to in-memory rate limiting: %v", err)
		} else {
			return NewRedisRateLimiter(client, 30, time.Minute).Middleware()
		}
	}
	return NewRateLimiter(30, 5).Middleware()
}

func ownerParam(c *gin.Context) ([32]byte, bool) {
	owner, err := decodeAddress(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner: " + err.Error()})
		return owner, false
	}
	return owner, true
}

// handleHealth reports engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "operational",
		"engine":      "coinjoin-engine",
		"dbConnected": h.dbStore != nil,
		"auditorOn":   h.auditor != nil,
	})
}

func (h *APIHandler) handleInitialize(c *gin.Context) {
	var req models.InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	owner, err := decodeAddress(req.Owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner: " + err.Error()})
		return
	}
	seed, err := decodeAddress(req.Seed)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seed: " + err.Error()})
		return
	}
	aggProof, err := decodeBlob(req.AggregateProof)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid aggregateProof: " + err.Error()})
		return
	}
	rangeProof, err := decodeBlob(req.RangeProof)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rangeProof: " + err.Error()})
		return
	}
	challenge, err := decodeAddress(req.Challenge)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge: " + err.Error()})
		return
	}
	commitments, err := decodeCommitments(req.Commitments)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commitments: " + err.Error()})
		return
	}
	merkleRoot, err := decodeAddress(req.MerkleRoot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merkleRoot: " + err.Error()})
		return
	}
	recipient, err := decodeAddress(req.Recipient)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient: " + err.Error()})
		return
	}
	additional, err := decodeRecipients(req.AdditionalRecipients)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid additionalRecipients: " + err.Error()})
		return
	}

	err = h.engine.Initialize(c.Request.Context(), transfer.InitializeArgs{
		Owner:                owner,
		Amount:               req.Amount,
		Seed:                 seed,
		AggregateProof:       aggProof,
		RangeProof:           rangeProof,
		Challenge:            proof.Challenge(challenge),
		Commitments:          commitments,
		MerkleRoot:           merkleRoot,
		Config:               decodeConfig(req.Config),
		Recipient:            recipient,
		AdditionalRecipients: additional,
		Now:                  req.Now,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "initialized", "owner": req.Owner})
}

func (h *APIHandler) handleExecuteHop(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	var req models.ExecuteHopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	p, err := decodeBlob(req.Proof)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proof: " + err.Error()})
		return
	}
	rp, err := decodeBlob(req.RangeProof)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rangeProof: " + err.Error()})
		return
	}
	accounts, err := decodeSplitAccounts(req.Accounts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid accounts: " + err.Error()})
		return
	}

	err = h.engine.ExecuteHop(c.Request.Context(), transfer.ExecuteHopArgs{
		Owner:      owner,
		HopIndex:   req.HopIndex,
		Proof:      p,
		RangeProof: rp,
		Accounts:   accounts,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	h.broadcastEvent(EventHopExecuted, c.Param("owner"), gin.H{"hopIndex": req.HopIndex})
	c.JSON(http.StatusOK, gin.H{"status": "hop_executed", "hopIndex": req.HopIndex})
}

func (h *APIHandler) handleExecuteBatchHop(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	var req models.ExecuteBatchHopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Proofs) != len(req.Accounts) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proofs and accounts must be the same length"})
		return
	}
	proofs := make([]proof.Blob, len(req.Proofs))
	for i, s := range req.Proofs {
		p, err := decodeBlob(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proof at index " + strconv.Itoa(i) + ": " + err.Error()})
			return
		}
		proofs[i] = p
	}
	accounts := make([][]transfer.SplitAccount, len(req.Accounts))
	for i, a := range req.Accounts {
		decoded, err := decodeSplitAccounts(a)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid accounts at index " + strconv.Itoa(i) + ": " + err.Error()})
			return
		}
		accounts[i] = decoded
	}

	hopsExecuted, err := h.engine.ExecuteBatchHop(c.Request.Context(), transfer.ExecuteBatchHopArgs{
		Owner:    owner,
		Proofs:   proofs,
		Accounts: accounts,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	h.broadcastEvent(EventBatchHopExecuted, c.Param("owner"), gin.H{"hopsExecuted": hopsExecuted})
	c.JSON(http.StatusOK, gin.H{"status": "batch_hop_executed", "hopsExecuted": hopsExecuted})
}

func (h *APIHandler) handleFinalize(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	var req models.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	p, err := decodeBlob(req.Proof)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proof: " + err.Error()})
		return
	}
	leaf, err := decodeAddress(req.MerkleLeaf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merkleLeaf: " + err.Error()})
		return
	}
	path, err := decodeMerklePath(req.MerklePath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merklePath: " + err.Error()})
		return
	}

	// Recorded before Finalize deletes the account — it's the last point
	// amount/fee totals are still readable.
	st, hadState, _ := h.engine.PeekState(owner)

	if err := h.engine.Finalize(c.Request.Context(), transfer.FinalizeArgs{
		Owner:            owner,
		Proof:            p,
		MerkleLeaf:       leaf,
		MerklePath:       path,
		MerkleDirections: req.MerkleDirections,
	}); err != nil {
		respondErr(c, err)
		return
	}

	if h.dbStore != nil && hadState {
		recipientCount := 1 + len(st.AdditionalRecipients)
		if err := h.dbStore.RecordFinalize(c.Request.Context(), owner, st.Amount, st.TotalFees, st.Config.NumHops, recipientCount); err != nil {
			log.Printf("failed to record finalize audit row: %v", err)
		}
	}
	h.broadcastEvent(EventFinalized, c.Param("owner"), gin.H{})
	c.JSON(http.StatusOK, gin.H{"status": "finalized"})
}

func (h *APIHandler) handleRefund(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	st, hadState, _ := h.engine.PeekState(owner)

	if err := h.engine.Refund(c.Request.Context(), transfer.RefundArgs{Owner: owner, Now: req.Now}); err != nil {
		respondErr(c, err)
		return
	}

	if h.dbStore != nil && hadState {
		if err := h.dbStore.RecordRefund(c.Request.Context(), owner, st.Amount, st.TotalFees, st.Config.NumHops); err != nil {
			log.Printf("failed to record refund audit row: %v", err)
		}
	}
	h.broadcastEvent(EventRefunded, c.Param("owner"), gin.H{})
	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}

func (h *APIHandler) handleRevealFake(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	var req models.RevealFakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	witness, err := decodeAddress(req.Witness)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid witness: " + err.Error()})
		return
	}

	err = h.engine.RevealFake(c.Request.Context(), transfer.RevealFakeArgs{
		Owner:   owner,
		Hop:     req.Hop,
		Split:   req.Split,
		Witness: witness,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "fake_revealed", "hop": req.Hop, "split": req.Split})
}

func (h *APIHandler) handleConfigUpdate(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	var req models.ConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	aggSig, err := decodeAggSig(req.AggSig)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid aggSig: " + err.Error()})
		return
	}
	newConfig := decodeConfig(req.NewConfig)

	err = h.engine.ConfigUpdate(c.Request.Context(), transfer.ConfigUpdateArgs{
		Owner:     owner,
		NewConfig: newConfig,
		Message:   []byte(req.Message),
		AggSig:    aggSig,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	if h.dbStore != nil {
		if err := h.dbStore.RecordConfigUpdate(c.Request.Context(), owner, newConfig); err != nil {
			log.Printf("failed to record config_update audit row: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "config_updated"})
}

// handleGetAuditLog returns a page of closed transfers (finalized or
// refunded).
func (h *APIHandler) handleGetAuditLog(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, totalCount, err := h.dbStore.GetAuditLog(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch audit log", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       entries,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// handleGetDriftReport summarizes the shadow auditor's persisted history.
func (h *APIHandler) handleGetDriftReport(c *gin.Context) {
	if h.auditor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shadow auditor not configured"})
		return
	}
	totalRuns, divergences, avgARI, err := h.auditor.GenerateDriftReport(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate drift report", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.DriftReportResponse{
		TotalRuns:       totalRuns,
		Divergences:     divergences,
		AvgAdjustedRand: avgARI,
	})
}

// broadcastEvent forwards a lifecycle event to the Hub. Silent no-op if no
// hub was wired (e.g. a headless batch deployment) — BroadcastEvent itself
// assumes a live Hub.
func (h *APIHandler) broadcastEvent(eventType string, owner string, extra gin.H) {
	if h.wsHub == nil {
		return
	}
	h.wsHub.BroadcastEvent(eventType, owner, extra)
}
