// Package models defines the JSON request/response shapes the HTTP API
// exchanges with callers. Every binary field (addresses, seeds, proof
// blobs, commitments) travels as a hex string; internal/api owns decoding
// them into the internal/transfer and internal/proof wire types.
package models

// ConfigDTO mirrors transfer.Config for wire transport.
type ConfigDTO struct {
	NumHops        uint8  `json:"numHops"`
	RealSplits     uint8  `json:"realSplits"`
	FakeSplits     uint8  `json:"fakeSplits"`
	ReserveBps     uint16 `json:"reserveBps"`
	FeeBps         uint16 `json:"feeBps"`
	CUBudgetPerHop uint32 `json:"cuBudgetPerHop"`
}

// RecipientDTO mirrors transfer.Recipient for wire transport.
type RecipientDTO struct {
	Address string `json:"address"` // hex-encoded 32-byte address
	Amount  uint64 `json:"amount"`
}

// InitializeRequest is the JSON body for the initialize entry point.
type InitializeRequest struct {
	Owner                string         `json:"owner"`
	Amount               uint64         `json:"amount"`
	Seed                 string         `json:"seed"`
	AggregateProof       string         `json:"aggregateProof"`
	RangeProof           string         `json:"rangeProof"`
	Challenge            string         `json:"challenge"`
	Commitments          []string       `json:"commitments"`
	MerkleRoot           string         `json:"merkleRoot"`
	Config               ConfigDTO      `json:"config"`
	Recipient            string         `json:"recipient"`
	AdditionalRecipients []RecipientDTO `json:"additionalRecipients,omitempty"`
	Now                  int64          `json:"now"`
}

// SplitAccountDTO is one candidate split account in hop-supplied ordering.
type SplitAccountDTO struct {
	Candidate string `json:"candidate"`
}

// ExecuteHopRequest is the JSON body for the execute_hop entry point.
type ExecuteHopRequest struct {
	HopIndex   uint8             `json:"hopIndex"`
	Proof      string            `json:"proof"`
	RangeProof string            `json:"rangeProof"`
	Accounts   []SplitAccountDTO `json:"accounts"`
}

// ExecuteBatchHopRequest is the JSON body for the execute_batch_hop entry
// point: one proof and one account set per hop attempted.
type ExecuteBatchHopRequest struct {
	Proofs   []string            `json:"proofs"`
	Accounts [][]SplitAccountDTO `json:"accounts"`
}

// FinalizeRequest is the JSON body for the finalize entry point.
type FinalizeRequest struct {
	Proof            string   `json:"proof"`
	MerkleLeaf       string   `json:"merkleLeaf"`
	MerklePath       []string `json:"merklePath"`
	MerkleDirections []bool   `json:"merkleDirections"`
}

// RefundRequest is the JSON body for the refund entry point.
type RefundRequest struct {
	Now int64 `json:"now"`
}

// RevealFakeRequest is the JSON body for the reveal_fake entry point.
type RevealFakeRequest struct {
	Hop     uint8  `json:"hop"`
	Split   uint8  `json:"split"`
	Witness string `json:"witness"`
}

// ConfigUpdateRequest is the JSON body for the config_update entry point.
type ConfigUpdateRequest struct {
	NewConfig ConfigDTO `json:"newConfig"`
	Message   string    `json:"message"`
	AggSig    string    `json:"aggSig"`
}

// DriftReportResponse summarizes a shadow.DualPathAuditor's persisted
// history for one snapshot.
type DriftReportResponse struct {
	SnapshotID      int64   `json:"snapshotId"`
	TotalRuns       int     `json:"totalRuns"`
	Divergences     int     `json:"divergences"`
	AvgAdjustedRand float64 `json:"avgAdjustedRandIndex"`
}
