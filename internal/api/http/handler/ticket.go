package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeflow/forgeflow/internal/api/http/dto"
	"github.com/forgeflow/forgeflow/internal/auth"
	"github.com/forgeflow/forgeflow/internal/metrics"
	"github.com/forgeflow/forgeflow/internal/ticket"
)

// TicketHandler issues single-use provisioning tickets and redeems them.
// The secret behind a ticket is a subject-scoped API token; redeeming the
// ticket is how an automation worker obtains its bearer credential.
type TicketHandler struct {
	tickets ticket.Store
	auth    auth.Config
	metrics *metrics.Metrics
}

func NewTicketHandler(tickets ticket.Store, authConfig auth.Config, m *metrics.Metrics) *TicketHandler {
	return &TicketHandler{
		tickets: tickets,
		auth:    authConfig,
		metrics: m,
	}
}

func (h *TicketHandler) Issue(ctx *gin.Context) {
	var req dto.IssueTicketRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret, err := auth.GenerateToken(h.auth, req.SubjectID)
	if err != nil {
		slog.Error("Failed to generate ticket secret", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue ticket"})
		return
	}

	t, err := h.tickets.Issue(ctx.Request.Context(), req.SubjectID, secret)
	if err != nil {
		slog.Error("Failed to issue provisioning ticket", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue ticket"})
		return
	}

	if h.metrics != nil {
		h.metrics.TicketsIssued.Inc()
	}

	ctx.JSON(http.StatusCreated, dto.IssueTicketResponse{
		Token:     t.Token,
		SubjectID: t.SubjectID,
		ExpiresAt: t.ExpiresAt,
	})
}

func (h *TicketHandler) Redeem(ctx *gin.Context) {
	var req dto.RedeemTicketRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret, err := h.tickets.Redeem(ctx.Request.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, ticket.ErrAlreadyUsed):
			ctx.JSON(http.StatusConflict, gin.H{"error": "Ticket already used", "code": "already_used"})
		case errors.Is(err, ticket.ErrExpired):
			ctx.JSON(http.StatusGone, gin.H{"error": "Ticket expired", "code": "expired"})
		case errors.Is(err, ticket.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found", "code": "not_found"})
		default:
			slog.Error("Ticket redemption failed", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Redemption failed"})
		}
		return
	}

	ctx.JSON(http.StatusOK, dto.RedeemTicketResponse{AccessToken: secret})
}
