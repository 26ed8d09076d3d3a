package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
)

// statusForError maps a taxonomy category to the HTTP status a caller
// should see. Validation/PDA failures are the caller's fault (400/422);
// State and Accounting failures describe a transfer that cannot proceed
// as asked (409); Proof failures are a rejected assertion (422); Resource
// failures are exhaustion, not malformed input (429/507); Authority
// failures are who's asking, not what they asked (401/403).
func statusForError(err error) int {
	ce, ok := err.(*coreerrors.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ce.Category {
	case coreerrors.CategoryValidation:
		return http.StatusBadRequest
	case coreerrors.CategoryState:
		return http.StatusConflict
	case coreerrors.CategoryProof, coreerrors.CategoryPDA:
		return http.StatusUnprocessableEntity
	case coreerrors.CategoryAccounting:
		return http.StatusConflict
	case coreerrors.CategoryResource:
		if coreerrors.Is(err, coreerrors.ErrComputeBudgetExhausted) {
			return http.StatusInsufficientStorage
		}
		return http.StatusTooManyRequests
	case coreerrors.CategoryAuthority:
		if coreerrors.Is(err, coreerrors.ErrUnauthorizedSigner) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes a JSON error body keyed by the taxonomy's wire code,
// falling back to a bare message for errors that never passed through
// internal/core/errors (decode failures, missing collaborators).
func respondErr(c *gin.Context, err error) {
	if ce, ok := err.(*coreerrors.Error); ok {
		c.JSON(statusForError(err), gin.H{
			"code":     ce.Code,
			"category": ce.Category.String(),
			"error":    ce.Label,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
