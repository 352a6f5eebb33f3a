package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/taskdigest/internal/config"
	"github.com/kazz187/taskdigest/internal/digest"
	"github.com/kazz187/taskdigest/internal/pushnotification"
	"github.com/kazz187/taskdigest/internal/run"
	"github.com/kazz187/taskdigest/internal/scheduler"
	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/clog"
)

const maxRunsPage = 100

type DigestRunner interface {
	Run(ctx context.Context, req digest.Request) (*digest.Result, error)
}

type ScheduleReader interface {
	Next() *time.Time
	State() scheduler.State
}

type Server struct {
	server      *http.Server
	env         *config.Env
	pipeline    DigestRunner
	schedule    ScheduleReader
	runRepo     run.Repository
	pushHandler *pushnotification.Handler
}

func NewServer(
	env *config.Env,
	pipeline DigestRunner,
	schedule ScheduleReader,
	runRepo run.Repository,
	pushHandler *pushnotification.Handler,
) *Server {
	return &Server{
		env:         env,
		pipeline:    pipeline,
		schedule:    schedule,
		runRepo:     runRepo,
		pushHandler: pushHandler,
	}
}

// Handler returns the complete HTTP handler, API key check and CORS included.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.Recoverer,
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.Post("/digest", s.postDigest)
		r.Get("/schedule", s.getSchedule)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
		r.Route("/push", s.pushHandler.Routes)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker()))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe serves until Shutdown. Request contexts derive from ctx.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)
	if s.env.APIKey == "" {
		slog.Warn("server: API_KEY is empty, /api is open to anyone who can reach it")
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env.APIKey == "" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func queryLimit(r *http.Request, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, cerr.NewError(cerr.InvalidArgument, "limit must be an integer between 1 and "+strconv.Itoa(max), err)
	}
	return n, nil
}

type digestResponse struct {
	RunID     string `json:"run_id"`
	Tasks     int    `json:"tasks"`
	Chunks    int    `json:"chunks"`
	Delivered int    `json:"delivered"`
}

func (s *Server) postDigest(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryLimit(r, maxRunsPage)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := s.pipeline.Run(ctx, digest.Request{Trigger: run.TriggerOnDemand, Limit: limit})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &digestResponse{
		RunID:     res.Run.ID,
		Tasks:     res.Run.TaskCount,
		Chunks:    res.Run.ChunkCount,
		Delivered: res.Run.Delivered,
	})
}

type scheduleResponse struct {
	State       string     `json:"state"`
	NextTrigger *time.Time `json:"next_trigger"`
}

func (s *Server) getSchedule(_ http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), &scheduleResponse{
		State:       s.schedule.State().String(),
		NextTrigger: s.schedule.Next(),
	})
}

type runsResponse struct {
	Runs []*run.Run `json:"runs"`
}

func (s *Server) listRuns(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryLimit(r, maxRunsPage)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if limit == 0 {
		limit = 20
	}
	runs, err := s.runRepo.List(ctx, limit)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if runs == nil {
		runs = []*run.Run{}
	}
	cerr.SetJSONResponse(ctx, &runsResponse{Runs: runs})
}

func (s *Server) getRun(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := ulid.ParseStrict(id); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid run id", err)
		return
	}
	rn, err := s.runRepo.Get(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, rn)
}
