package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vendorgate/vendorgate/pkg/async"
	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/middleware"
	"github.com/vendorgate/vendorgate/pkg/observability"
	"github.com/vendorgate/vendorgate/pkg/orgs"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/resources"
	"github.com/vendorgate/vendorgate/pkg/tenants"
	"github.com/vendorgate/vendorgate/pkg/webhooks"
)

// Deps carries everything the server wires together
type Deps struct {
	Resolver identity.Resolver
	Sessions *identity.PostgresStore
	Recorder audit.Recorder
	Metrics  *observability.Metrics
	Logger   *observability.Logger
	// TaskLogger is used for fire-and-forget background work.
	TaskLogger *logrus.Logger

	Tenants    tenants.Service
	Orgs       orgs.Service
	Documents  *resources.DocumentService
	Payments   *resources.PaymentService
	Statements *resources.StatementService
	Messages   *resources.MessageService
	Dashboard  *resources.DashboardService
	Webhooks   webhooks.Store
	Dispatcher *webhooks.Dispatcher

	// RateLimit is the edge limiter; nil disables limiting (tests).
	RateLimit mux.MiddlewareFunc
	// MaxUploadBytes caps document uploads; requests declaring more are
	// rejected before the body is read.
	MaxUploadBytes int64
}

// Server is the portal API server
type Server struct {
	router   *mux.Router
	handler  http.Handler
	pipeline *policy.Pipeline
	logger   *observability.Logger
}

// NewServer builds the router with the full middleware chain and all
// handler groups registered.
func NewServer(deps Deps) *Server {
	pipeline := policy.NewPipeline(deps.Resolver, deps.Recorder, deps.Metrics, deps.Logger)

	s := &Server{
		router:   mux.NewRouter(),
		pipeline: pipeline,
		logger:   deps.Logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logging(deps.Logger, deps.Metrics))
	s.router.Use(middleware.Recovery(deps.Logger))
	if deps.RateLimit != nil {
		s.router.Use(deps.RateLimit)
	}
	s.router.NotFoundHandler = s.withRequestID(http.HandlerFunc(notFound))
	s.router.MethodNotAllowedHandler = s.withRequestID(http.HandlerFunc(methodNotAllowed))

	// Every route below the prefix passes the authorization chokepoint:
	// identity resolution first, then mandatory tenant-scope validation.
	// The limiter runs again after Authenticate: the root stage keys
	// callers by IP, this stage sees the resolved identity and applies the
	// per-user limits.
	protected := s.router.PathPrefix("/api/v1").Subrouter()
	protected.Use(pipeline.Authenticate)
	if deps.RateLimit != nil {
		protected.Use(deps.RateLimit)
	}
	protected.Use(pipeline.TenantScope)

	emitter := &eventEmitter{
		dispatcher: deps.Dispatcher,
		recorder:   deps.Recorder,
		tasks:      deps.TaskLogger,
		logger:     deps.Logger,
	}

	if deps.Sessions != nil {
		NewAuthHandlers(deps.Sessions, deps.Resolver, deps.Recorder).RegisterRoutes(protected)
	}
	NewDocumentHandlers(deps.Documents, pipeline, emitter, deps.MaxUploadBytes).RegisterRoutes(protected)
	NewPaymentHandlers(deps.Payments, pipeline, emitter).RegisterRoutes(protected)
	NewStatementHandlers(deps.Statements, pipeline, emitter).RegisterRoutes(protected)
	NewMessageHandlers(deps.Messages, pipeline, emitter).RegisterRoutes(protected)
	NewOrgHandlers(deps.Orgs, deps.Tenants, pipeline, emitter).RegisterRoutes(protected)
	NewTenantHandlers(deps.Tenants, pipeline, emitter).RegisterRoutes(protected)
	NewDashboardHandlers(deps.Dashboard).RegisterRoutes(protected)
	webhooks.NewHandlers(deps.Webhooks, deps.Recorder).RegisterRoutes(protected)

	s.handler = otelhttp.NewHandler(s.router, "vendorgate.http")
	return s
}

// Handler returns the root handler including tracing instrumentation
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router exposes the bare router for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// withRequestID applies only the request id middleware; mux does not run
// .Use middlewares for NotFound/MethodNotAllowed handlers.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorCode(w, r, httputil.CodeNotFound, "route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorCode(w, r, httputil.CodeValidation, "method not allowed")
}

// eventEmitter dispatches webhooks and records audit events as
// fire-and-forget side effects. Failures are logged, never propagated; the
// originating mutation has already committed.
type eventEmitter struct {
	dispatcher *webhooks.Dispatcher
	recorder   audit.Recorder
	tasks      *logrus.Logger
	logger     *observability.Logger
}

const emitTimeout = 30 * time.Second

func (e *eventEmitter) emit(r *http.Request, tenantID int64, eventType webhooks.EventType, data map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}
	event := webhooks.NewEvent(tenantID, eventType, data)
	async.SafeGo(r.Context(), emitTimeout, "webhook dispatch", e.tasks, func(ctx context.Context) error {
		e.dispatcher.Dispatch(ctx, event)
		return nil
	})
}

func (e *eventEmitter) record(r *http.Request, event *audit.Event) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(r.Context(), event); err != nil {
		e.logger.WithRequest(r.Context()).WithError(err).Error("failed to record audit event")
	}
}
