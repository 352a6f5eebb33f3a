package pushnotification

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskdigest/internal/config"
	"github.com/kazz187/taskdigest/internal/pushsubscription"
	"github.com/kazz187/taskdigest/pkg/cerr"
)

// Handler serves the push subscription endpoints under /api/push.
type Handler struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
}

func NewHandler(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *Handler {
	return &Handler{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/vapid-public-key", h.getVapidPublicKey)
	r.Post("/subscriptions", h.registerSubscription)
	r.Delete("/subscriptions", h.unregisterSubscription)
}

type vapidPublicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

func (h *Handler) getVapidPublicKey(_ http.ResponseWriter, r *http.Request) {
	if h.vapidEnv.PublicKey == "" {
		cerr.SetNewJSONError(r.Context(), cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(r.Context(), &vapidPublicKeyResponse{PublicKey: h.vapidEnv.PublicKey})
}

// registerRequest mirrors PushSubscription.toJSON() in browsers.
type registerRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type subscriptionResponse struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

func (h *Handler) registerSubscription(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 16<<10)).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	switch {
	case req.Endpoint == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	case req.Keys.P256dh == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "keys.p256dh is required", nil)
		return
	case req.Keys.Auth == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "keys.auth is required", nil)
		return
	}

	sub, err := h.repo.Upsert(ctx, &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, &subscriptionResponse{ID: sub.ID, Endpoint: sub.Endpoint})
}

func (h *Handler) unregisterSubscription(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if err := h.repo.DeleteByEndpoint(ctx, endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &subscriptionResponse{Endpoint: endpoint})
}
