package server

import (
	"errors"
	"net/http"

	"github.com/aimerfeng/minerewards/internal/adsignal"
	apierrors "github.com/aimerfeng/minerewards/internal/errors"
	"github.com/aimerfeng/minerewards/internal/identity"
	"github.com/aimerfeng/minerewards/internal/idempotency"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/aimerfeng/minerewards/internal/rewards"
	"github.com/gin-gonic/gin"
)

// toAPIError maps domain errors onto the API error taxonomy
func toAPIError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, identity.ErrNotAuthenticated):
		return apierrors.ErrNotAuthenticatedError
	case errors.Is(err, ledger.ErrLedgerMissing):
		return apierrors.ErrLedgerNotFoundError
	case errors.Is(err, ledger.ErrTransactionConflict):
		return apierrors.ErrTransactionConflictError
	case errors.Is(err, ledger.ErrLedgerExists):
		return apierrors.NewConflictError(apierrors.ErrLedgerExists, "Reward ledger already exists")
	case errors.Is(err, idempotency.ErrInFlight):
		return apierrors.ErrRequestInFlightError
	case errors.Is(err, adsignal.ErrSignalRejected):
		return apierrors.ErrAdSignalFailedError
	case errors.Is(err, adsignal.ErrSignalTimeout):
		return apierrors.ErrAdSignalTimeoutError
	case errors.Is(err, adsignal.ErrSignalUnavailable):
		return apierrors.ErrAdSignalUnavailableError
	case errors.Is(err, rewards.ErrReferralCodeNotFound):
		return apierrors.ErrReferralCodeNotFoundError
	case errors.Is(err, rewards.ErrSelfReferral):
		return apierrors.NewConflictError(apierrors.ErrReferralRejected, "You cannot use your own referral code")
	case errors.Is(err, rewards.ErrAlreadyReferred):
		return apierrors.NewConflictError(apierrors.ErrReferralRejected, "A referral code was already applied")
	case errors.Is(err, rewards.ErrInvalidUsername):
		return apierrors.NewValidationError(err.Error())
	default:
		return apierrors.ErrInternalServerError
	}
}

func validationError(err error) *apierrors.APIError {
	return apierrors.NewValidationError(err.Error())
}

// respondDomainError maps err and responds; unmapped errors are logged
func respondDomainError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.HTTPStatus >= http.StatusInternalServerError && apiErr.Code == apierrors.ErrInternalServer {
		logging.LogError(err, c.GetString("request_id"), "api", c.FullPath())
	}
	respondError(c, apiErr)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	c.JSON(err.HTTPStatus, apierrors.NewErrorResponse(
		err,
		c.GetString("request_id"),
		c.GetString("correlation_id"),
		c.Request.URL.Path,
		c.Request.Method,
	))
}
