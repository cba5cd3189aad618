package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/mstgnz/paykit/infra/response"
	"github.com/mstgnz/paykit/provider"
)

// CancelSubscriptionRequest is the body of POST /v1/subscriptions/cancel
type CancelSubscriptionRequest struct {
	Provider               string `json:"provider,omitempty"`
	ProviderSubscriptionID string `json:"providerSubscriptionId" validate:"required"`
	CancelAtPeriodEnd      bool   `json:"cancelAtPeriodEnd"`
}

// UpdateRequest is the body of POST /v1/subscriptions/update
type UpdateRequest struct {
	Provider string `json:"provider,omitempty"`
	provider.UpdateSubscriptionRequest
}

// CreateSubscription handles POST /v1/subscriptions
func (h *PaymentHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req provider.SubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.CreateSubscription(ctx, providerParam(r), req)
	if err != nil {
		writeError(w, "Failed to create subscription", err)
		return
	}
	writeResult(w, result.Success, http.StatusCreated, "Subscription created", result.Error, result)
}

// CancelSubscription handles POST /v1/subscriptions/cancel
func (h *PaymentHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req CancelSubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.CancelSubscription(ctx, strings.ToLower(req.Provider), req.ProviderSubscriptionID, req.CancelAtPeriodEnd)
	if err != nil {
		writeError(w, "Failed to cancel subscription", err)
		return
	}
	writeResult(w, result.Success, http.StatusOK, "Subscription cancelled", result.Error, result)
}

// UpdateSubscription handles POST /v1/subscriptions/update
func (h *PaymentHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PlanID == "" && req.Quantity == nil {
		response.Error(w, http.StatusBadRequest, "Nothing to update: planId or quantity is required", nil)
		return
	}

	result, err := h.service.UpdateSubscription(ctx, strings.ToLower(req.Provider), req.UpdateSubscriptionRequest)
	if err != nil {
		writeError(w, "Failed to update subscription", err)
		return
	}
	writeResult(w, result.Success, http.StatusOK, "Subscription updated", result.Error, result)
}

// RegisterSubscription handles POST /v1/subscriptions/register. It stores
// the subscription and its first payment in one transaction.
func (h *PaymentHandler) RegisterSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req provider.RegistrationRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.RegisterUserWithSubscription(ctx, req)
	if err != nil {
		writeError(w, "Failed to register subscription", err)
		return
	}
	response.Success(w, http.StatusCreated, "Subscription registered", result)
}
