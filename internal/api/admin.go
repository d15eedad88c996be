package api

import (
	"net/http"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/models"
	"go.uber.org/zap"
)

func (h *Handler) AdminListRechargesHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := requestFilter(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Recharges.List(r.Context(), f)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *Handler) ApproveRechargeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request id")
		return
	}
	rr, err := h.svc.Recharges.Approve(r.Context(), id, headerID(r, headerAdminID))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rr)
}

func (h *Handler) RejectRechargeHandler(w http.ResponseWriter, r *http.Request) {
	id, reason, ok := h.rejection(w, r)
	if !ok {
		return
	}
	rr, err := h.svc.Recharges.Reject(r.Context(), id, headerID(r, headerAdminID), reason)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rr)
}

func (h *Handler) AdminListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := requestFilter(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Withdrawals.List(r.Context(), f)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *Handler) ApproveWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request id")
		return
	}
	wr, err := h.svc.Withdrawals.Approve(r.Context(), id, headerID(r, headerAdminID))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wr)
}

func (h *Handler) RejectWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	id, reason, ok := h.rejection(w, r)
	if !ok {
		return
	}
	wr, err := h.svc.Withdrawals.Reject(r.Context(), id, headerID(r, headerAdminID), reason)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wr)
}

func (h *Handler) rejection(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request id")
		return 0, "", false
	}
	body, _, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return 0, "", false
	}
	var req models.RejectRequest
	if !h.decode(w, body, &req) {
		return 0, "", false
	}
	return id, req.Reason, true
}

// RunAccrualHandler triggers an accrual run for today, or for the date in the
// body. Re-running a date only credits what is still missing.
func (h *Handler) RunAccrualHandler(w http.ResponseWriter, r *http.Request) {
	body, _, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	var req models.AccrualRunRequest
	if len(body) > 0 && !h.decode(w, body, &req) {
		return
	}

	h.log.Info("accrual run requested",
		zap.Int64("admin_id", headerID(r, headerAdminID)),
		zap.String("date", req.Date))

	if req.Date == "" {
		report, err := h.svc.Accrual.RunAccrualTick(r.Context())
		if err != nil {
			h.respondWithServiceError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, report)
		return
	}

	day, _ := time.Parse(time.DateOnly, req.Date)
	report, err := h.svc.Accrual.RunAccrualFor(r.Context(), day)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

func (h *Handler) RunPrincipalsHandler(w http.ResponseWriter, r *http.Request) {
	h.log.Info("principal return requested", zap.Int64("admin_id", headerID(r, headerAdminID)))
	report, err := h.svc.Accrual.ReturnPrincipals(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

func (h *Handler) RebuildSummariesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	n, err := h.svc.Summary.Rebuild(r.Context(), userID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.RebuildResponse{UserID: userID, Replayed: n})
}

func (h *Handler) VerifySummariesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	check, err := h.svc.Summary.Verify(r.Context(), userID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, check)
}
