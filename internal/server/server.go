// Package server exposes the HTTP surface: the provider webhook endpoint,
// health checks and the JWT-protected admin API.
package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ringlabs/callsync/internal/callstore"
	"github.com/ringlabs/callsync/internal/config"
	"github.com/ringlabs/callsync/internal/crmsync"
	"github.com/ringlabs/callsync/internal/database"
	"github.com/ringlabs/callsync/internal/enrichment"
	apierrors "github.com/ringlabs/callsync/internal/errors"
	"github.com/ringlabs/callsync/internal/ingest"
	"github.com/ringlabs/callsync/internal/logging"
	"github.com/ringlabs/callsync/internal/middleware"
	"github.com/ringlabs/callsync/internal/monitoring"
	"github.com/ringlabs/callsync/internal/resolver"
)

// APIServer represents the main API server
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	db               *database.DB
	controller       *ingest.Controller
	calls            *callstore.Service
	resolver         *resolver.Service
	crm              *crmsync.Service
	enricher         *enrichment.Worker
	jwtAuthenticator *middleware.JWTAuthenticator
}

// NewAPIServer creates a new API server instance
func NewAPIServer(
	cfg *config.Config,
	db *database.DB,
	controller *ingest.Controller,
	calls *callstore.Service,
	resolverSvc *resolver.Service,
	crm *crmsync.Service,
	enricher *enrichment.Worker,
) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:           cfg,
		router:           router,
		db:               db,
		controller:       controller,
		calls:            calls,
		resolver:         resolverSvc,
		crm:              crm,
		enricher:         enricher,
		jwtAuthenticator: middleware.NewJWTAuthenticator(&cfg.JWT),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/health/db", s.healthCheckDB)

	v1 := s.router.Group("/api/v1")
	{
		// Provider webhooks (authenticated by signature, not JWT)
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/telephony/calls", s.handleCallEvent)
		}

		// Admin routes (protected - requires valid JWT)
		admin := v1.Group("/admin")
		admin.Use(s.jwtAuthenticator.JWTAuth())
		{
			admin.PUT("/mappings", s.handleOverrideMapping)
			admin.GET("/mappings/:providerContactID", s.handleGetMapping)
			admin.GET("/calls/:id", s.handleGetCall)
			admin.GET("/calls/:id/activities", s.handleListCallActivities)
			admin.POST("/calls/:id/enrich", s.handleEnrichCall)
			admin.GET("/accounts/:id", s.handleGetAccount)
			admin.GET("/contacts/:id", s.handleGetContact)
		}
	}
}

// healthCheck reports process liveness
func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "callsync",
	})
}

// healthCheckDB reports database reachability
func (s *APIServer) healthCheckDB(c *gin.Context) {
	if err := s.db.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleCallEvent ingests one provider delivery. Duplicates are 200s so
// the provider stops retrying; only pre-durability failures are 5xx.
func (s *APIServer) handleCallEvent(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apierrors.NewValidationError("unreadable request body"))
		return
	}
	signature := c.GetHeader(s.config.Webhook.SignatureHeader)

	result, err := s.controller.ProcessEvent(c.Request.Context(), raw, signature)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidSignature):
			respondError(c, apierrors.ErrInvalidSignatureError)
		case errors.Is(err, ingest.ErrInvalidPayload):
			respondError(c, apierrors.NewValidationError(err.Error()))
		default:
			logging.LogError(err, middleware.GetRequestIDFromContext(c), "server", "process_event")
			respondError(c, apierrors.ErrRecordingFailedError)
		}
		return
	}

	resp := gin.H{"status": string(result.Disposition)}
	if result.CallRecordID != uuid.Nil {
		resp["call_record_id"] = result.CallRecordID
		resp["link_method"] = result.LinkMethod
	}
	if result.SyncReport != nil {
		resp["sync_report"] = result.SyncReport
	}
	c.JSON(http.StatusOK, resp)
}

// OverrideMappingRequest pins a provider contact id to an account
type OverrideMappingRequest struct {
	ProviderContactID string    `json:"provider_contact_id" binding:"required"`
	AccountID         uuid.UUID `json:"account_id" binding:"required"`
}

// handleOverrideMapping creates or replaces a manual contact mapping
func (s *APIServer) handleOverrideMapping(c *gin.Context) {
	var req OverrideMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	mapping, err := s.resolver.OverrideMapping(c.Request.Context(), req.ProviderContactID, req.AccountID)
	if err != nil {
		if errors.Is(err, resolver.ErrAccountNotFound) {
			respondError(c, apierrors.ErrAccountNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, mapping)
}

// handleGetMapping returns the mapping for a provider contact id
func (s *APIServer) handleGetMapping(c *gin.Context) {
	mapping, err := s.resolver.GetMapping(c.Request.Context(), c.Param("providerContactID"))
	if err != nil {
		if errors.Is(err, resolver.ErrMappingNotFound) {
			respondError(c, apierrors.ErrMappingNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, mapping)
}

// handleGetCall fetches a call record by internal id
func (s *APIServer) handleGetCall(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid call id"))
		return
	}

	rec, err := s.calls.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, callstore.ErrCallNotFound) {
			respondError(c, apierrors.ErrCallNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleListCallActivities returns the sales activities created for a call
func (s *APIServer) handleListCallActivities(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid call id"))
		return
	}

	activities, err := s.crm.ListActivitiesForCall(c.Request.Context(), id)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"activities": activities, "count": len(activities)})
}

// handleGetAccount returns an account together with its deals
func (s *APIServer) handleGetAccount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid account id"))
		return
	}

	acct, err := s.resolver.GetAccount(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, resolver.ErrAccountNotFound) {
			respondError(c, apierrors.ErrAccountNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	deals, err := s.crm.ListDealsForAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": acct, "deals": deals})
}

// handleGetContact fetches a contact by id
func (s *APIServer) handleGetContact(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid contact id"))
		return
	}

	contact, err := s.crm.GetContact(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, crmsync.ErrContactNotFound) {
			respondError(c, apierrors.ErrContactNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, contact)
}

// handleEnrichCall triggers an immediate enrichment run for one call
func (s *APIServer) handleEnrichCall(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid call id"))
		return
	}

	outcome, err := s.enricher.EnrichCall(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, callstore.ErrCallNotFound):
			respondError(c, apierrors.ErrCallNotFoundError)
		case errors.Is(err, enrichment.ErrNotEligible):
			respondError(c, apierrors.NewInvalidRequestError("Call is not completed or has no transcript"))
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	c.JSON(err.HTTPStatus, apierrors.ErrorResponse{
		Error:     *err,
		RequestID: middleware.GetRequestIDFromContext(c),
	})
}
