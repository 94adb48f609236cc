package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fx-backoffice/internal/auth"
	"fx-backoffice/internal/platform"
	"fx-backoffice/internal/remote"
	"fx-backoffice/internal/store"
	"fx-backoffice/internal/verify"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	successResponse(c, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.loginLimiter.Allow(c.ClientIP()) {
		errorResponse(c, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.authService.Login(c.Request.Context(), req)
	if err != nil {
		var authErr auth.AuthError
		if errors.As(err, &authErr) {
			errorResponse(c, http.StatusUnauthorized, authErr.Message)
			return
		}
		s.logger.Error().Err(err).Msg("login failed")
		errorResponse(c, http.StatusInternalServerError, "login failed")
		return
	}

	successResponse(c, resp)
}

// pendingView is the wire shape of the pending-requests list
type pendingView struct {
	Requests []platform.PaymentRequest `json:"requests"`
	Stale    bool                      `json:"stale"`
	CachedAt *time.Time                `json:"cached_at,omitempty"`
	Count    int                       `json:"count"`
}

func (s *Server) handleListPending(c *gin.Context) {
	scope := store.Scope{UserID: c.Query("user_id")}
	pauth := s.platformAuth(auth.OperatorID(c))

	result, err := s.requests.LoadPending(c.Request.Context(), pauth, scope)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}

	view := pendingView{
		Requests: result.Requests,
		Stale:    result.Stale,
		Count:    len(result.Requests),
	}
	if result.Stale && !result.CachedAt.IsZero() {
		at := result.CachedAt
		view.CachedAt = &at
	}
	successResponse(c, view)
}

func (s *Server) handleGetRequest(c *gin.Context) {
	req, ok := s.requests.Get(c.Param("id"))
	if !ok {
		errorResponse(c, http.StatusNotFound, "request not found in current view")
		return
	}
	successResponse(c, req)
}

// decisionTimeout bounds a detached decision call. It must cover the full
// platform write retry schedule, which an operator disconnect no longer cuts
// short.
const decisionTimeout = 60 * time.Second

// decisionContext detaches a decision from the connection lifetime. A
// dropped socket or page refresh must not abort an in-flight platform write,
// so the call runs under its own deadline while keeping request-scoped
// values.
func decisionContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), decisionTimeout)
}

type approveBody struct {
	VerifiedAmount       float64 `json:"verified_amount"`
	Confirmed            bool    `json:"confirmed"`
	OverdrawAcknowledged bool    `json:"overdraw_acknowledged"`
}

func (s *Server) handlePreviewApprove(c *gin.Context) {
	var body approveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := decisionContext(c)
	defer cancel()

	pauth := s.platformAuth(auth.OperatorID(c))
	preview, err := s.engine.PreviewApprove(ctx, pauth, c.Param("id"), body.VerifiedAmount)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}
	successResponse(c, preview)
}

func (s *Server) handleApprove(c *gin.Context) {
	var body approveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := decisionContext(c)
	defer cancel()

	pauth := s.platformAuth(auth.OperatorID(c))
	opts := verify.ApproveOptions{
		Confirmed:            body.Confirmed,
		OverdrawAcknowledged: body.OverdrawAcknowledged,
	}
	outcome, err := s.engine.Approve(ctx, pauth, c.Param("id"), body.VerifiedAmount, opts)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}
	successResponse(c, outcome)
}

type rejectBody struct {
	Reason    string `json:"reason"`
	Confirmed bool   `json:"confirmed"`
}

func (s *Server) handleReject(c *gin.Context) {
	var body rejectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := decisionContext(c)
	defer cancel()

	pauth := s.platformAuth(auth.OperatorID(c))
	outcome, err := s.engine.Reject(ctx, pauth, c.Param("id"), body.Reason, body.Confirmed)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}
	successResponse(c, outcome)
}

// balanceView wraps a balance with its staleness flag so the dashboard can
// badge values served from cache.
type balanceView struct {
	Balance *platform.AccountBalance `json:"balance"`
	Stale   bool                     `json:"stale"`
}

func (s *Server) handleGetBalance(c *gin.Context) {
	owner := platform.Owner{
		UserID:      c.Query("user_id"),
		AccountType: c.Query("account_type"),
	}
	if owner.UserID == "" || owner.AccountType == "" {
		errorResponse(c, http.StatusBadRequest, "user_id and account_type are required")
		return
	}

	pauth := s.platformAuth(auth.OperatorID(c))
	balance, stale, err := s.balances.Get(c.Request.Context(), pauth, owner)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}
	successResponse(c, balanceView{Balance: balance, Stale: stale})
}

func (s *Server) handleAuditByRequest(c *gin.Context) {
	entries, err := s.auditReader.ListByRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Error().Err(err).Msg("audit query failed")
		errorResponse(c, http.StatusInternalServerError, "audit query failed")
		return
	}
	successResponse(c, entries)
}

func (s *Server) handleAuditMine(c *gin.Context) {
	limit := parseLimit(c, 50)
	entries, err := s.auditReader.ListByOperator(c.Request.Context(), auth.OperatorID(c), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit query failed")
		errorResponse(c, http.StatusInternalServerError, "audit query failed")
		return
	}
	successResponse(c, entries)
}

func (s *Server) handleAuditRecent(c *gin.Context) {
	limit := parseLimit(c, 100)
	entries, err := s.auditReader.ListRecent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit query failed")
		errorResponse(c, http.StatusInternalServerError, "audit query failed")
		return
	}
	successResponse(c, entries)
}

func parseLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return fallback
	}
	return n
}

// writeWorkflowError maps workflow and platform errors onto HTTP statuses.
// Local validation is 400, state conflicts 409, business refusals 422, and
// platform trouble surfaces as 401/502/503 so the SPA can distinguish
// re-login from retry-later.
func (s *Server) writeWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, verify.ErrUnknownRequest):
		errorResponse(c, http.StatusNotFound, "request not found in current view")
	case errors.Is(err, verify.ErrAlreadyFinalized):
		errorResponse(c, http.StatusConflict, "request already finalized")
	case errors.Is(err, verify.ErrDecisionInFlight):
		errorResponse(c, http.StatusConflict, "a decision for this request is already in flight")
	case errors.Is(err, verify.ErrInvalidAmount):
		errorResponse(c, http.StatusBadRequest, "verified amount must be positive")
	case errors.Is(err, verify.ErrMissingReason):
		errorResponse(c, http.StatusBadRequest, "rejection reason is required")
	case errors.Is(err, verify.ErrConfirmationRequired):
		errorResponse(c, http.StatusBadRequest, "decision requires explicit confirmation")
	case errors.Is(err, verify.ErrOverdrawNotAcked):
		errorResponse(c, http.StatusBadRequest, "withdrawal exceeds balance, acknowledge the warning to proceed")
	case errors.Is(err, verify.ErrOverdrawBlocked):
		errorResponse(c, http.StatusUnprocessableEntity, "withdrawal exceeds balance and overdraw is disabled")
	case errors.Is(err, platform.ErrAuthExpired):
		errorResponse(c, http.StatusUnauthorized, "platform session expired, sign in again")
	case platform.IsBusiness(err):
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, remote.ErrPersistenceFailed):
		errorResponse(c, http.StatusBadGateway, "platform write failed after retries, no changes were applied")
	case errors.Is(err, remote.ErrRemoteUnavailable):
		errorResponse(c, http.StatusServiceUnavailable, "platform unavailable, try again shortly")
	default:
		s.logger.Error().Err(err).Msg("unhandled workflow error")
		errorResponse(c, http.StatusInternalServerError, "internal error")
	}
}
