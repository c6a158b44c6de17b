/**
 * @description
 * HTTP handlers for the payout and subscription lifecycle service. Handlers
 * are thin glue: decode the request, call the application service, map
 * service errors to status codes.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/app"
	"github.com/WeAreKoji/getkoji-sub002/internal/store"
	"github.com/WeAreKoji/getkoji-sub002/pkg/stripeclient"
)

// Handler holds the application services that handlers will interact with.
type Handler struct {
	connector   *app.Connector
	lifecycle   *app.Lifecycle
	adjudicator *app.Adjudicator
	retry       *app.RetryEngine
	attributor  *app.Attributor
}

// NewHandler creates a new Handler with the given services.
func NewHandler(connector *app.Connector, lifecycle *app.Lifecycle, adjudicator *app.Adjudicator, retry *app.RetryEngine, attributor *app.Attributor) *Handler {
	return &Handler{
		connector:   connector,
		lifecycle:   lifecycle,
		adjudicator: adjudicator,
		retry:       retry,
		attributor:  attributor,
	}
}

func (h *Handler) handleInitiateOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	link, err := h.connector.InitiateOnboarding(r.Context(), userID)
	if err != nil {
		log.Printf("Error initiating payout onboarding for creator %s: %v", userID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, link)
}

func (h *Handler) handleRefreshPayoutAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	acct, err := h.connector.RefreshStatus(r.Context(), userID)
	if err != nil {
		log.Printf("Error refreshing payout account for creator %s: %v", userID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleGetPayoutStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.connector.Status(r.Context(), userID)
	if err != nil {
		log.Printf("Error getting payout status for creator %s: %v", userID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	subs, err := h.lifecycle.ListBySubscriber(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing subscriptions for user %s: %v", userID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, subs)
}

func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.lifecycle.Get(r.Context(), userID, subID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleChangePrice(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		PriceRef string `json:"price_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PriceRef == "" {
		http.Error(w, "price_ref is required", http.StatusBadRequest)
		return
	}

	sub, err := h.lifecycle.ChangePrice(r.Context(), userID, app.ChangePriceCommand{
		SubscriptionID: subID,
		NewPriceID:     req.PriceRef,
	})
	if err != nil {
		log.Printf("Error changing price on subscription %s: %v", subID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) handlePauseSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		ResumeAt time.Time `json:"resume_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResumeAt.IsZero() {
		http.Error(w, "resume_at is required", http.StatusBadRequest)
		return
	}

	sub, err := h.lifecycle.Pause(r.Context(), userID, app.PauseCommand{
		SubscriptionID: subID,
		ResumeAt:       req.ResumeAt,
	})
	if err != nil {
		log.Printf("Error pausing subscription %s: %v", subID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleResumeSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.lifecycle.Resume(r.Context(), userID, app.ResumeCommand{SubscriptionID: subID})
	if err != nil {
		log.Printf("Error resuming subscription %s: %v", subID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.lifecycle.Cancel(r.Context(), userID, app.CancelCommand{SubscriptionID: subID})
	if err != nil {
		log.Printf("Error canceling subscription %s: %v", subID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleSubmitRefund(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		SubscriptionID uuid.UUID `json:"subscription_id"`
		Amount         int64     `json:"amount"`
		Reason         string    `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == uuid.Nil {
		http.Error(w, "subscription_id is required", http.StatusBadRequest)
		return
	}

	refund, err := h.adjudicator.Submit(r.Context(), userID, app.SubmitRefundCommand{
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		Reason:         req.Reason,
	})
	if err != nil {
		log.Printf("Error submitting refund request for user %s: %v", userID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, refund)
}

func (h *Handler) handleListRefunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	refunds, err := h.adjudicator.ListByUser(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing refund requests for user %s: %v", userID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, refunds)
}

func (h *Handler) handleDecideRefund(w http.ResponseWriter, r *http.Request) {
	requestID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Approve    bool   `json:"approve"`
		AdminNotes string `json:"admin_notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	decided, err := h.adjudicator.Decide(r.Context(), requestID, req.Approve, req.AdminNotes)
	if err != nil {
		log.Printf("Error deciding refund request %s: %v", requestID, err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, decided)
}

func (h *Handler) handleRunTransferRetries(w http.ResponseWriter, r *http.Request) {
	result, err := h.retry.RunRetryBatch(r.Context())
	if err != nil {
		log.Printf("Error running transfer retry batch: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRunCommissionAccrual(w http.ResponseWriter, r *http.Request) {
	result, err := h.attributor.RunCommissionAccrual(r.Context())
	if err != nil {
		log.Printf("Error running commission accrual: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRunCommissionPayouts(w http.ResponseWriter, r *http.Request) {
	result, err := h.attributor.RunCommissionPayouts(r.Context())
	if err != nil {
		log.Printf("Error running commission payouts: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// uuidParam parses a UUID path parameter, writing a 400 response when it is
// missing or malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "Invalid "+name+" parameter", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// respondWithServiceError maps application errors to HTTP status codes.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNoMatchingSubscription),
		errors.Is(err, app.ErrPayoutAccountNotConnected),
		errors.Is(err, store.ErrRefundNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, app.ErrResumeTimeNotFuture),
		errors.Is(err, app.ErrRefundAmountInvalid),
		errors.Is(err, app.ErrRefundAmountExceedsCharge),
		errors.Is(err, app.ErrAdminNotesRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrRefundAlreadyDecided):
		http.Error(w, err.Error(), http.StatusConflict)
	case stripeclient.IsRetryable(err):
		http.Error(w, "Payment processor temporarily unavailable", http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
