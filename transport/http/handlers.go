package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/service"
)

// PasskeyHandlers contains HTTP handlers for the passkey endpoints
type PasskeyHandlers struct {
	svc *service.Service
}

// NewPasskeyHandlers creates new passkey handlers
func NewPasskeyHandlers(svc *service.Service) *PasskeyHandlers {
	return &PasskeyHandlers{svc: svc}
}

// BeginRegistration issues a registration ceremony
func (h *PasskeyHandlers) BeginRegistration(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	options, err := h.svc.BeginRegistration(c.Request.Context(), req.Email, req.DisplayName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, options)
}

// FinishRegistration verifies the attestation and binds the credential
func (h *PasskeyHandlers) FinishRegistration(c *gin.Context) {
	var req struct {
		ChallengeID string                   `json:"challenge_id" binding:"required"`
		Response    core.AttestationResponse `json:"response" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.svc.CompleteRegistration(c.Request.Context(), req.ChallengeID, req.Response)
	if err != nil {
		status, msg := registrationStatus(err)
		registrationCount.WithLabelValues(outcomeFor(status)).Inc()
		c.JSON(status, gin.H{"error": msg})
		return
	}

	registrationCount.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{
		"identity_id":    result.Identity.ID,
		"wallet_address": result.Identity.WalletAddress,
		"credential_id":  result.Credential.ID,
	})
}

func registrationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrChallengeNotFound):
		return http.StatusBadRequest, "Challenge not found or expired"
	case errors.Is(err, core.ErrVerificationFailed):
		return http.StatusBadRequest, "Attestation verification failed"
	case errors.Is(err, core.ErrCredentialLimitExceeded):
		return http.StatusConflict, "Credential limit exceeded"
	case errors.Is(err, core.ErrWalletConflict):
		return http.StatusConflict, "Wallet address already bound"
	default:
		return http.StatusInternalServerError, "Registration failed"
	}
}

// BeginAuthentication issues an authentication ceremony
func (h *PasskeyHandlers) BeginAuthentication(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	options, err := h.svc.BeginAuthentication(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, options)
}

// FinishAuthentication verifies the assertion and opens a session
func (h *PasskeyHandlers) FinishAuthentication(c *gin.Context) {
	var req struct {
		ChallengeID string                 `json:"challenge_id" binding:"required"`
		Response    core.AssertionResponse `json:"response" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.svc.CompleteAuthentication(c.Request.Context(), req.ChallengeID, req.Response)
	if err != nil {
		status, msg := authenticationStatus(err)
		authenticationCount.WithLabelValues(outcomeFor(status)).Inc()
		c.JSON(status, gin.H{"error": msg})
		return
	}

	authenticationCount.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{
		"access_token":   result.Token,
		"token_type":     "Bearer",
		"expires_at":     result.ExpiresAt,
		"identity_id":    result.Identity.ID,
		"wallet_address": result.Identity.WalletAddress,
	})
}

func authenticationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrChallengeNotFound):
		return http.StatusBadRequest, "Challenge not found or expired"
	case errors.Is(err, core.ErrCredentialNotFound):
		return http.StatusUnauthorized, "Unknown credential"
	case errors.Is(err, core.ErrCounterRegression):
		return http.StatusUnauthorized, "Authenticator counter regression"
	case errors.Is(err, core.ErrVerificationFailed):
		return http.StatusUnauthorized, "Assertion verification failed"
	default:
		return http.StatusInternalServerError, "Authentication failed"
	}
}

// Logout invalidates the bearer session
func (h *PasskeyHandlers) Logout(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
		return
	}

	if err := h.svc.InvalidateSession(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the claims of the authenticated identity
func (h *PasskeyHandlers) Me(c *gin.Context) {
	claims, exists := c.Get("sessionClaims")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	sc := claims.(core.SessionClaims)
	c.JSON(http.StatusOK, gin.H{
		"identity_id":    sc.IdentityID,
		"wallet_address": sc.WalletAddress,
		"expires_at":     sc.ExpiresAt,
	})
}

// Health reports process liveness
func (h *PasskeyHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
