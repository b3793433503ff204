// Package egress is the credential-injecting proxy between sandboxed
// automation workers and the outside world. Workers talk to it over a
// local Unix socket and never see the tokens it injects; the proxy talks
// only to allowlisted hosts.
package egress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forgeflow/forgeflow/internal/audit"
	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/metrics"
	"github.com/forgeflow/forgeflow/internal/provider"
)

// Response headers that survive the proxy; everything else is stripped
// before the worker sees the reply.
var safeResponseHeaders = []string{"Content-Type", "Content-Length", "Date"}

const forwardTimeout = 60 * time.Second

type Config struct {
	SocketPath string   `mapstructure:"socket_path"`
	Allowlist  []string `mapstructure:"allowlist"`
}

type ForwardRequest struct {
	SubjectID string            `json:"subject_id" binding:"required"`
	Service   string            `json:"service" binding:"required"`
	Method    string            `json:"method" binding:"required"`
	URL       string            `json:"url" binding:"required"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
}

type ForwardResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Server handles forward requests from many concurrent worker
// connections. Each request carries its own subject and service identity;
// the only shared state is the credential store and the audit sink.
type Server struct {
	allowlist   Allowlist
	credentials credstore.Store
	audit       audit.Publisher
	metrics     *metrics.Metrics
	client      *http.Client
}

func NewServer(allowlist Allowlist, credentials credstore.Store, auditPublisher audit.Publisher, m *metrics.Metrics) *Server {
	if len(allowlist) == 0 {
		allowlist = DefaultAllowlist
	}
	if auditPublisher == nil {
		auditPublisher = audit.LogPublisher{}
	}
	return &Server{
		allowlist:   allowlist,
		credentials: credentials,
		audit:       auditPublisher,
		metrics:     m,
		client:      &http.Client{Timeout: forwardTimeout},
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.POST("/forward", s.Forward)
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return engine
}

// Serve listens on the configured Unix socket until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", socketPath, err)
	}

	httpServer := &http.Server{Handler: s.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("Egress proxy listening", "socket", socketPath)
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Forward(c *gin.Context) {
	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target, err := url.Parse(req.URL)
	if err != nil || target.Hostname() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target url"})
		return
	}

	// The allowlist check runs before any credential lookup: a blocked
	// destination must never cause a secret to be touched.
	if !s.allowlist.Allows(target.Hostname()) {
		slog.Warn("Blocked egress request", "subject_id", req.SubjectID, "host", target.Hostname())
		if s.metrics != nil {
			s.metrics.EgressBlocked.Inc()
		}
		s.audit.Emit(c.Request.Context(), audit.Event{
			Subject: req.SubjectID,
			Type:    audit.EventSecurity,
			Status:  "blocked",
			Detail:  map[string]any{"host": target.Hostname(), "service": req.Service},
		})
		c.JSON(http.StatusForbidden, gin.H{"error": "domain not allowed"})
		return
	}

	providerID, err := provider.ParseID(req.Service)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown service"})
		return
	}

	token, err := s.credentials.Get(c.Request.Context(), req.SubjectID, providerID)
	if err != nil {
		if errors.Is(err, credstore.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no credential for service"})
			return
		}
		slog.Error("Credential lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credential lookup failed"})
		return
	}

	response, err := s.forward(c.Request.Context(), req, token.AccessToken)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.EgressForwards.WithLabelValues(req.Service, outcome).Inc()
	}
	s.audit.Emit(c.Request.Context(), audit.Event{
		Subject: req.SubjectID,
		Type:    audit.EventAPICall,
		Status:  outcome,
		Detail:  map[string]any{"host": target.Hostname(), "method": req.Method, "service": req.Service},
	})

	if err != nil {
		slog.Error("Forward failed", "subject_id", req.SubjectID, "host", target.Hostname(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) forward(ctx context.Context, req ForwardRequest, token string) (*ForwardResponse, error) {
	outbound, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), req.URL, strings.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	for key, value := range req.Headers {
		// The worker never controls the credential header.
		if strings.EqualFold(key, "Authorization") {
			continue
		}
		outbound.Header.Set(key, value)
	}
	outbound.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(outbound)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	for _, name := range safeResponseHeaders {
		if value := resp.Header.Get(name); value != "" {
			headers[name] = value
		}
	}

	return &ForwardResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       string(body),
	}, nil
}
