package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgeflow/forgeflow/internal/api/http/handler"
	"github.com/forgeflow/forgeflow/internal/api/http/middleware"
	"github.com/forgeflow/forgeflow/internal/auth"
	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/metrics"
	"github.com/forgeflow/forgeflow/internal/oauth"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
	"github.com/forgeflow/forgeflow/internal/ticket"
)

type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Exchanger    *oauth.Exchanger
	Tokens       credstore.Store
	Tickets      ticket.Store
	Auth         auth.Config
	Metrics      *metrics.Metrics
}

func SetupRoute(engine *gin.Engine, config Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	oauthHandler := handler.NewOAuthHandler(srvs.Exchanger, srvs.Tokens, config.AppRedirect)
	engine.GET("/oauth/:provider/start", middleware.JWTAuth(srvs.Auth.Secret), oauthHandler.Start)
	engine.GET("/oauth/:provider/callback", oauthHandler.Callback)

	ticketHandler := handler.NewTicketHandler(srvs.Tickets, srvs.Auth, srvs.Metrics)
	provisionHandler := handler.NewProvisionHandler(srvs.Orchestrator, srvs.Tokens)

	api := engine.Group("/api/v1")
	{
		api.POST("/tickets", middleware.APIKeyAuth(config.AdminAPIKey), ticketHandler.Issue)
		api.POST("/tickets/redeem", ticketHandler.Redeem)
		api.POST("/provision", middleware.JWTAuth(srvs.Auth.Secret), provisionHandler.Provision)
	}
}
