package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/models"
	"github.com/punchamoorthee/yieldledger/internal/service"
)

func (h *Handler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.History.Balance(r.Context(), headerID(r, headerUserID))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.WalletResponse{UserID: user.ID, WalletBalance: user.WalletBalance})
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	result, err := h.svc.History.Transactions(r.Context(), headerID(r, headerUserID), domain.PageQuery{
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) DailyReturnsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupBy, err := domain.ParsePeriodType(q.Get("groupBy"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "groupBy must be day, week or month")
		return
	}
	var since time.Time
	if raw := q.Get("since"); raw != "" {
		if since, err = time.Parse(time.DateOnly, raw); err != nil {
			respondWithError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
	}

	graph, err := h.svc.History.DailyReturns(r.Context(), headerID(r, headerUserID), since, groupBy)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, graph)
}

func (h *Handler) CreateRechargeHandler(w http.ResponseWriter, r *http.Request) {
	body, _, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	var req models.RechargeRequest
	if !h.decode(w, body, &req) {
		return
	}

	rr, err := h.svc.Recharges.Create(r.Context(), service.RechargeInput{
		UserID:            headerID(r, headerUserID),
		Amount:            req.Amount,
		ChainName:         req.ChainName,
		BlockchainAddress: req.BlockchainAddress,
		TransactionID:     req.TransactionID,
		ProofKey:          req.ProofKey,
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/recharges/%d", rr.ID))
	respondWithJSON(w, http.StatusCreated, rr)
}

func (h *Handler) ListRechargesHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := requestFilter(w, r)
	if !ok {
		return
	}
	f.UserID = headerID(r, headerUserID)
	list, err := h.svc.Recharges.List(r.Context(), f)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// CreateWithdrawalHandler reserves funds for a withdrawal. With an
// Idempotency-Key, a retried request replays the original response with 200.
// The replay is the creation-time snapshot, so its status may be stale; the
// current state comes from GET /withdrawals.
func (h *Handler) CreateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	body, hash, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	var req models.WithdrawalRequest
	if !h.decode(w, body, &req) {
		return
	}

	wr, replayed, err := h.svc.Withdrawals.Create(r.Context(), service.WithdrawalInput{
		UserID:            headerID(r, headerUserID),
		Amount:            req.Amount,
		ChainName:         req.ChainName,
		BlockchainAddress: req.BlockchainAddress,
		Idempotency:       service.IdempotencyKey{Key: r.Header.Get(headerIdempotency), Hash: hash},
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	if replayed {
		respondWithJSON(w, http.StatusOK, wr)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/withdrawals/%d", wr.ID))
	respondWithJSON(w, http.StatusCreated, wr)
}

func (h *Handler) ListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := requestFilter(w, r)
	if !ok {
		return
	}
	f.UserID = headerID(r, headerUserID)
	list, err := h.svc.Withdrawals.List(r.Context(), f)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// PurchaseHandler buys a plan. Idempotency-Key replays return the
// subscription as it was when bought, with 200.
func (h *Handler) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	body, hash, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	var req models.PurchaseRequest
	if !h.decode(w, body, &req) {
		return
	}

	key := service.IdempotencyKey{Key: r.Header.Get(headerIdempotency), Hash: hash}
	sub, replayed, err := h.svc.Purchases.Purchase(r.Context(), headerID(r, headerUserID), req.PlanID, key)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	if replayed {
		respondWithJSON(w, http.StatusOK, sub)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/subscriptions/%d", sub.ID))
	respondWithJSON(w, http.StatusCreated, sub)
}

func (h *Handler) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.Purchases.List(r.Context(), headerID(r, headerUserID))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, subs)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// requestFilter parses ?status= and ?limit= for request listings.
func requestFilter(w http.ResponseWriter, r *http.Request) (domain.RequestFilter, bool) {
	var f domain.RequestFilter
	switch s := domain.RequestStatus(r.URL.Query().Get("status")); s {
	case "", domain.RequestPending, domain.RequestApproved, domain.RequestRejected:
		f.Status = s
	default:
		respondWithError(w, http.StatusBadRequest, "status must be PENDING, APPROVED or REJECTED")
		return f, false
	}
	limit, err := optionalInt(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		respondWithError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return f, false
	}
	f.Limit = limit
	return f, true
}
