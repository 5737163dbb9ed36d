package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/services"
)

// AccountHandler exposes the connection lifecycle over JSON. Responses never
// include credential material, encrypted or not.
type AccountHandler struct {
	connections *services.ConnectionService
}

func NewAccountHandler(connections *services.ConnectionService) *AccountHandler {
	return &AccountHandler{connections: connections}
}

// connectionResponse is the safe public view of a connection.
type connectionResponse struct {
	ID              string     `json:"id"`
	Platform        string     `json:"platform"`
	PlatformUserID  string     `json:"platform_user_id,omitempty"`
	Username        string     `json:"username,omitempty"`
	Status          string     `json:"status"`
	Scopes          string     `json:"scopes,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toConnectionResponse(conn *models.Connection) connectionResponse {
	return connectionResponse{
		ID:              conn.ID,
		Platform:        conn.Platform,
		PlatformUserID:  conn.PlatformUserID,
		Username:        conn.Username,
		Status:          conn.Status,
		Scopes:          conn.Scopes,
		HasRefreshToken: conn.HasRefreshToken(),
		TokenExpiresAt:  conn.TokenExpiresAt,
		CreatedAt:       conn.CreatedAt,
		UpdatedAt:       conn.UpdatedAt,
	}
}

// List returns the caller's connections.
// GET /api/accounts
func (h *AccountHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")

	conns, err := h.connections.ListConnections(c, userID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	out := make([]connectionResponse, 0, len(conns))
	for i := range conns {
		out = append(out, toConnectionResponse(&conns[i]))
	}
	c.JSON(http.StatusOK, gin.H{"connections": out})
}

// Platforms returns the platform keys available for connecting.
// GET /api/accounts/platforms
func (h *AccountHandler) Platforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": h.connections.Platforms()})
}

// Callback is the OAuth redirect target: it exchanges the authorization code
// and stores the connection.
// GET /api/accounts/callback/:platform?code=...
func (h *AccountHandler) Callback(c *gin.Context) {
	userID := c.GetString("user_id")
	platformKey := c.Param("platform")

	if errParam := c.Query("error"); errParam != "" {
		// The user denied consent upstream; nothing to exchange.
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "authorization_denied",
			"error_description": "the platform reported a denied or failed authorization",
		})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "missing_code",
			"error_description": "authorization code is required",
		})
		return
	}

	conn, err := h.connections.Connect(c, userID, platformKey, code)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"connection": toConnectionResponse(conn)})
}

// Refresh renews the connection's access token.
// POST /api/accounts/:id/refresh
func (h *AccountHandler) Refresh(c *gin.Context) {
	userID := c.GetString("user_id")
	connectionID := c.Param("id")

	conn, err := h.connections.Refresh(c, userID, connectionID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"connection": toConnectionResponse(conn)})
}

// Health runs a live health check against the platform.
// GET /api/accounts/:id/health
func (h *AccountHandler) Health(c *gin.Context) {
	userID := c.GetString("user_id")
	connectionID := c.Param("id")

	report, err := h.connections.HealthCheck(c, userID, connectionID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Disconnect removes the connection and its stored credentials.
// DELETE /api/accounts/:id
func (h *AccountHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("user_id")
	connectionID := c.Param("id")

	if err := h.connections.Disconnect(c, userID, connectionID); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

// renderError maps service errors onto HTTP statuses. Anything unexpected is
// logged server-side and answered with an opaque 500 so internals (and
// anything an error string might carry) stay out of responses.
func (h *AccountHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrLimitReached):
		c.JSON(http.StatusForbidden, gin.H{
			"error":             "limit_reached",
			"error_description": "your plan's connection limit has been reached",
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "forbidden",
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "connection_not_found",
		})
	case errors.Is(err, services.ErrNoRefreshToken), errors.Is(err, services.ErrReauthRequired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "reauthorize_required",
			"error_description": "reconnect the account to continue",
		})
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unsupported_platform",
		})
	default:
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})
	}
}
