package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/timour/ucp-merchant/checkout"
	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/store"
)

type handler struct {
	service      *checkout.Service
	transactions *store.Transactions
	profiles     *profileResolver
	discovery    *discoveryDocument
	config       Config
	logger       *slog.Logger
}

func newHandler(service *checkout.Service, transactions *store.Transactions, profiles *profileResolver, discovery *discoveryDocument, config Config, logger *slog.Logger) *handler {
	return &handler{
		service:      service,
		transactions: transactions,
		profiles:     profiles,
		discovery:    discovery,
		config:       config,
		logger:       logger,
	}
}

func (h *handler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout-sessions", h.protected(h.handleCreateCheckout))
	mux.HandleFunc("GET /checkout-sessions/{id}", h.protected(h.handleGetCheckout))
	mux.HandleFunc("PUT /checkout-sessions/{id}", h.protected(h.handleUpdateCheckout))
	mux.HandleFunc("POST /checkout-sessions/{id}/complete", h.protected(h.handleCompleteCheckout))
	mux.HandleFunc("POST /checkout-sessions/{id}/cancel", h.protected(h.handleCancelCheckout))
	mux.HandleFunc("GET /orders/{id}", h.protected(h.handleGetOrder))
	mux.HandleFunc("PUT /orders/{id}", h.protected(h.handleUpdateOrder))
	mux.HandleFunc("POST /testing/simulate-shipping/{id}", h.handleSimulateShipping)
	mux.HandleFunc("POST /webhooks/partners/{partnerID}/events/order", h.handleOrderEvent)
	mux.HandleFunc("GET /.well-known/ucp", h.handleDiscovery)
}

func (h *handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	platform := h.profiles.PlatformConfig(r.Context(), r.Header.Get("UCP-Agent"))
	c, err := h.service.Create(r.Context(), r.Header.Get("Idempotency-Key"), req, platform)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) handleGetCheckout(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) handleUpdateCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	c, err := h.service.Update(r.Context(), r.Header.Get("Idempotency-Key"), r.PathValue("id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) handleCompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	c, err := h.service.Complete(r.Context(), r.Header.Get("Idempotency-Key"), r.PathValue("id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) handleCancelCheckout(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Cancel(r.Context(), r.Header.Get("Idempotency-Key"), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var order models.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	updated, err := h.service.UpdateOrder(r.Context(), r.PathValue("id"), order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleSimulateShipping marks an order shipped for end-to-end testing.
// Guarded by a shared secret instead of the protocol headers.
func (h *handler) handleSimulateShipping(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Simulation-Secret") != h.config.SimulationSecret || h.config.SimulationSecret == "" {
		writeEnvelope(w, http.StatusForbidden, "Invalid simulation secret", "INVALID_REQUEST")
		return
	}

	if _, err := h.service.ShipOrder(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shipped"})
}

// handleOrderEvent stores an order pushed by a partner platform.
func (h *handler) handleOrderEvent(w http.ResponseWriter, r *http.Request) {
	var order models.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	h.logger.Info("inbound order event",
		slog.String("partner_id", r.PathValue("partnerID")),
		slog.String("order_id", order.ID),
	)
	if err := h.service.SaveInboundOrder(r.Context(), order); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *handler) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.discovery.Render())
}
