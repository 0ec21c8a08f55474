package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veloswap/market/internal/auth"
	"github.com/veloswap/market/internal/marketplace/app"
	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/result"
)

const idempotencyHeader = "Idempotency-Key"

// Handler exposes the negotiation and fulfillment operations over HTTP.
type Handler struct {
	negotiation app.Negotiation
	fulfillment app.Fulfillment
	idempotency ports.IdempotencyStore
	metrics     *Metrics
	logger      *slog.Logger
}

func NewHandler(negotiation app.Negotiation, fulfillment app.Fulfillment, idempotency ports.IdempotencyStore, metrics *Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		negotiation: negotiation,
		fulfillment: fulfillment,
		idempotency: idempotency,
		metrics:     metrics,
		logger:      logger,
	}
}

type rejectSaleRequest struct {
	Reason string `json:"reason"`
}

func actorOf(r *http.Request) domain.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func (h *Handler) createOffer(w http.ResponseWriter, r *http.Request) {
	var payload app.CreateOfferInput
	if err := decodeBody(r, &payload); err != nil {
		writeBadRequest(w, "invalid JSON payload")
		return
	}

	res := h.negotiation.CreateOffer(r.Context(), actorOf(r), payload)
	writeResult(w, res, http.StatusCreated)
}

func (h *Handler) getOffer(w http.ResponseWriter, r *http.Request) {
	res := h.negotiation.GetOffer(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) acceptOffer(w http.ResponseWriter, r *http.Request) {
	res := h.negotiation.AcceptOffer(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) rejectOffer(w http.ResponseWriter, r *http.Request) {
	res := h.negotiation.RejectOffer(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	writeResult(w, res, http.StatusOK)
}

// createOrder replays the stored response when the buyer reuses an
// Idempotency-Key. Keys are scoped to the buyer and reserved before the order
// is placed, so a retry racing the original gets 409 instead of a second order.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorOf(r)

	idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if idemKey == "" {
		writeBadRequest(w, "Idempotency-Key header required")
		return
	}
	storeKey := actor.ID + ":" + idemKey

	reserved, err := h.idempotency.Reserve(ctx, storeKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "idempotency reserve failed", "error", err, "key", idemKey)
		writeResult(w, result.Internal[any](), http.StatusOK)
		return
	}
	if !reserved {
		h.replay(w, r, storeKey, idemKey)
		return
	}

	saved := false
	defer func() {
		if saved {
			return
		}
		if err := h.idempotency.Release(context.WithoutCancel(ctx), storeKey); err != nil {
			h.logger.ErrorContext(ctx, "idempotency release failed", "error", err, "key", idemKey)
		}
	}()

	var payload app.CreateOrderInput
	if err := decodeBody(r, &payload); err != nil {
		writeBadRequest(w, "invalid JSON payload")
		return
	}

	res := h.fulfillment.CreateOrder(ctx, actor, payload)
	status := statusCode(res.Status, http.StatusCreated)

	body, err := json.Marshal(res)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode order response failed", "error", err)
		writeResult(w, result.Internal[any](), http.StatusOK)
		return
	}

	// Internal failures are not stored so the client can retry them.
	if status < http.StatusInternalServerError {
		response := ports.StoredResponse{StatusCode: status, Body: body}
		if res.Success {
			response.ResourceID = res.Value().Order.ID
		}
		if err := h.idempotency.Save(ctx, storeKey, response); err != nil {
			h.logger.ErrorContext(ctx, "idempotency save failed", "error", err, "key", idemKey)
		} else {
			saved = true
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// replay serves the response saved under a key another request reserved.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, storeKey, idemKey string) {
	ctx := r.Context()

	stored, err := h.idempotency.Get(ctx, storeKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "idempotency lookup failed", "error", err, "key", idemKey)
		writeResult(w, result.Internal[any](), http.StatusOK)
		return
	}
	if stored == nil {
		writeResult(w, result.Fail[any](result.KindConflict, "a request with this Idempotency-Key is still in progress"), http.StatusOK)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordReplay(ctx, routePattern(r))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	res := h.fulfillment.GetOrder(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	res := h.fulfillment.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) approveSale(w http.ResponseWriter, r *http.Request) {
	res := h.fulfillment.ApproveSale(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	writeResult(w, res, http.StatusOK)
}

// rejectSale accepts an empty body; the reason is optional.
func (h *Handler) rejectSale(w http.ResponseWriter, r *http.Request) {
	var payload rejectSaleRequest
	if err := decodeBody(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON payload")
		return
	}

	res := h.fulfillment.RejectSale(r.Context(), chi.URLParam(r, "id"), actorOf(r), payload.Reason)
	writeResult(w, res, http.StatusOK)
}
