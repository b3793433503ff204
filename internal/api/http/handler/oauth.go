package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/oauth"
	"github.com/forgeflow/forgeflow/internal/provider"
)

// OAuthHandler drives the authorization-code flow at the HTTP boundary.
// Start redirects to the provider; the callback persists the exchanged
// token and redirects back to the app with either ?connect=ok or a
// specific error code.
type OAuthHandler struct {
	exchanger   *oauth.Exchanger
	tokens      credstore.Store
	appRedirect string
}

func NewOAuthHandler(exchanger *oauth.Exchanger, tokens credstore.Store, appRedirect string) *OAuthHandler {
	return &OAuthHandler{
		exchanger:   exchanger,
		tokens:      tokens,
		appRedirect: appRedirect,
	}
}

func (h *OAuthHandler) Start(ctx *gin.Context) {
	providerID, err := provider.ParseID(ctx.Param("provider"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subjectID := ctx.GetString("subject_id")

	authorizeURL, err := h.exchanger.StartFlow(providerID, subjectID)
	if err != nil {
		slog.Warn("OAuth start failed", "provider", providerID, "code", oauth.ErrorCode(err))
		h.redirectError(ctx, oauth.ErrorCode(err))
		return
	}

	ctx.Redirect(http.StatusFound, authorizeURL)
}

func (h *OAuthHandler) Callback(ctx *gin.Context) {
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		h.redirectError(ctx, "invalid_state")
		return
	}

	exchange, err := h.exchanger.CompleteFlow(ctx.Request.Context(), code, state)
	if err != nil {
		slog.Warn("OAuth callback failed", "code", oauth.ErrorCode(err))
		h.redirectError(ctx, oauth.ErrorCode(err))
		return
	}

	err = h.tokens.Save(ctx.Request.Context(), credstore.Token{
		SubjectID:    exchange.SubjectID,
		Provider:     exchange.Provider,
		AccessToken:  exchange.AccessToken,
		RefreshToken: exchange.RefreshToken,
		Metadata:     exchange.Metadata,
		UpdatedAt:    time.Now(),
	})
	if err != nil {
		slog.Error("Failed to persist exchanged token", "error", err, "provider", exchange.Provider)
		h.redirectError(ctx, "storage_failed")
		return
	}

	slog.Info("Provider connected", "subject_id", exchange.SubjectID, "provider", exchange.Provider)
	ctx.Redirect(http.StatusFound, h.appRedirect+"?connect=ok&provider="+url.QueryEscape(string(exchange.Provider)))
}

func (h *OAuthHandler) redirectError(ctx *gin.Context, code string) {
	ctx.Redirect(http.StatusFound, h.appRedirect+"?connect=error&code="+url.QueryEscape(code))
}
