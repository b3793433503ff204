package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeflow/forgeflow/internal/api/http/dto"
	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
	"github.com/forgeflow/forgeflow/internal/provider"
	"github.com/forgeflow/forgeflow/internal/stack"
)

type ProvisionHandler struct {
	orchestrator *orchestrator.Orchestrator
	tokens       credstore.Store
}

func NewProvisionHandler(o *orchestrator.Orchestrator, tokens credstore.Store) *ProvisionHandler {
	return &ProvisionHandler{
		orchestrator: o,
		tokens:       tokens,
	}
}

func (h *ProvisionHandler) Provision(ctx *gin.Context) {
	var req dto.ProvisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subjectID := ctx.GetString("subject_id")

	credentials, err := h.collectCredentials(ctx, subjectID)
	if err != nil {
		slog.Error("Failed to load stored credentials", "error", err, "subject_id", subjectID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load credentials"})
		return
	}

	if err := mergeCredentials(credentials, req.Credentials); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recommendation := stack.Recommend(req.Description)
	if req.Framework != "" {
		recommendation.Framework = req.Framework
	}
	if req.Database != "" {
		recommendation.Database = req.Database
	}
	if req.Hosting != "" {
		recommendation.Hosting = req.Hosting
	}

	result, err := h.orchestrator.Run(ctx.Request.Context(), orchestrator.Request{
		SubjectID:   subjectID,
		ProjectName: req.ProjectName,
		Description: req.Description,
		Stack:       recommendation,
		Credentials: credentials,
	}, func(step orchestrator.Step) {
		slog.Info("Provisioning step", "subject_id", subjectID, "step", step.ID, "status", step.Status)
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrValidation) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Provisioning run failed unexpectedly", "error", err, "subject_id", subjectID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Provisioning failed"})
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// mergeCredentials overlays tokens supplied on the request itself over
// the subject's stored ones. A keyed entry with an empty token is
// rejected rather than silently shadowing a connected account.
func mergeCredentials(credentials map[provider.ID]provider.Credential, supplied map[string]dto.ProvisionCredential) error {
	for name, inline := range supplied {
		id, err := provider.ParseID(name)
		if err != nil {
			return err
		}
		if inline.Token == "" {
			return fmt.Errorf("credential for %s has no token", id)
		}
		credentials[id] = provider.Credential{
			Provider: id,
			Token:    inline.Token,
			Extra:    inline.Extra,
		}
	}
	return nil
}

// collectCredentials loads whatever tokens the subject has connected. A
// provider with no stored token is simply left out; the orchestrator skips
// the corresponding steps.
func (h *ProvisionHandler) collectCredentials(ctx *gin.Context, subjectID string) (map[provider.ID]provider.Credential, error) {
	credentials := make(map[provider.ID]provider.Credential)
	for _, id := range []provider.ID{provider.SourceControl, provider.Database, provider.Hosting} {
		token, err := h.tokens.Get(ctx.Request.Context(), subjectID, id)
		if err != nil {
			if errors.Is(err, credstore.ErrTokenNotFound) {
				continue
			}
			return nil, err
		}
		credentials[id] = provider.Credential{
			Provider: id,
			Token:    token.AccessToken,
			Extra:    token.Metadata,
		}
	}
	return credentials, nil
}
