package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/service"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yieldledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const (
	headerUserID      = "X-User-ID"
	headerAdminID     = "X-Admin-ID"
	headerIdempotency = "Idempotency-Key"
	headerRequestID   = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Services bundles what the handlers call into.
type Services struct {
	History     *service.History
	Recharges   *service.RechargeService
	Withdrawals *service.WithdrawalService
	Purchases   *service.PurchaseService
	Accrual     *service.AccrualEngine
	Summary     *service.SummaryAggregator
}

type Handler struct {
	svc      Services
	ping     func(ctx context.Context) error
	validate *validator.Validate
	log      *zap.Logger
}

// NewHandler wires the handlers. ping backs /health and may be nil.
func NewHandler(svc Services, ping func(ctx context.Context) error, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, ping: ping, validate: validator.New(), log: log}
}

// Routes builds the router: ops endpoints at the root, the API under /api/v1.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestID)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.instrument)

	user := v1.NewRoute().Subrouter()
	user.Use(h.requireID(headerUserID))
	user.HandleFunc("/wallet", h.GetWalletHandler).Methods(http.MethodGet)
	user.HandleFunc("/wallet/transactions", h.ListTransactionsHandler).Methods(http.MethodGet)
	user.HandleFunc("/daily-returns", h.DailyReturnsHandler).Methods(http.MethodGet)
	user.HandleFunc("/recharges", h.CreateRechargeHandler).Methods(http.MethodPost)
	user.HandleFunc("/recharges", h.ListRechargesHandler).Methods(http.MethodGet)
	user.HandleFunc("/withdrawals", h.CreateWithdrawalHandler).Methods(http.MethodPost)
	user.HandleFunc("/withdrawals", h.ListWithdrawalsHandler).Methods(http.MethodGet)
	user.HandleFunc("/subscriptions", h.PurchaseHandler).Methods(http.MethodPost)
	user.HandleFunc("/subscriptions", h.ListSubscriptionsHandler).Methods(http.MethodGet)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireID(headerAdminID))
	admin.HandleFunc("/recharges", h.AdminListRechargesHandler).Methods(http.MethodGet)
	admin.HandleFunc("/recharges/{id:[0-9]+}/approve", h.ApproveRechargeHandler).Methods(http.MethodPost)
	admin.HandleFunc("/recharges/{id:[0-9]+}/reject", h.RejectRechargeHandler).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawals", h.AdminListWithdrawalsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/withdrawals/{id:[0-9]+}/approve", h.ApproveWithdrawalHandler).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawals/{id:[0-9]+}/reject", h.RejectWithdrawalHandler).Methods(http.MethodPost)
	admin.HandleFunc("/accruals/run", h.RunAccrualHandler).Methods(http.MethodPost)
	admin.HandleFunc("/principals/run", h.RunPrincipalsHandler).Methods(http.MethodPost)
	admin.HandleFunc("/summaries/{userId:[0-9]+}/rebuild", h.RebuildSummariesHandler).Methods(http.MethodPost)
	admin.HandleFunc("/summaries/{userId:[0-9]+}/verify", h.VerifySummariesHandler).Methods(http.MethodGet)
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records the request counter and latency under the route template,
// so path ids do not explode label cardinality.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("request served",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (h *Handler) requireID(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" {
				respondWithError(w, http.StatusUnauthorized, "Missing "+header+" header")
				return
			}
			if id, err := strconv.ParseInt(raw, 10, 64); err != nil || id <= 0 {
				respondWithError(w, http.StatusBadRequest, "Malformed "+header+" header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Helpers

func headerID(r *http.Request, header string) int64 {
	id, _ := strconv.ParseInt(r.Header.Get(header), 10, 64)
	return id
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// readBody reads the body and returns it with the hex sha256 of its bytes,
// which is what idempotency keys are matched against.
func readBody(r *http.Request) ([]byte, string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, "", err
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))
	hash := sha256.Sum256(body)
	return body, hex.EncodeToString(hash[:]), nil
}

// decode unmarshals and validates a JSON payload, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, body []byte, dst any) bool {
	if err := json.Unmarshal(body, dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Field %s failed on the %q rule", fe.Field(), fe.Tag())
	}
	return "Invalid request"
}

// respondWithServiceError maps domain errors onto status codes. Anything
// unrecognised is logged and hidden behind a 500.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrInsufficientFunds):
		respondWithError(w, http.StatusUnprocessableEntity, rootMessage(err))
	case errors.Is(err, domain.ErrIdempotencyMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	case errors.Is(err, domain.ErrDuplicateProof),
		errors.Is(err, domain.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, rootMessage(err))
	case errors.Is(err, domain.ErrIdempotencyConflict):
		respondWithError(w, http.StatusConflict, "Request processing in progress")
	case errors.Is(err, domain.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		respondWithError(w, http.StatusServiceUnavailable, domain.ErrLockTimeout.Error())
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrPlanNotFound):
		respondWithError(w, http.StatusNotFound, rootMessage(err))
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// rootMessage returns the sentinel's text, hiding wrapping context such as ids.
func rootMessage(err error) string {
	for _, s := range []error{
		domain.ErrInvalidAmount, domain.ErrBelowMinimum, domain.ErrInsufficientFunds,
		domain.ErrDuplicateProof, domain.ErrInvalidTransition,
		domain.ErrUserNotFound, domain.ErrRequestNotFound, domain.ErrPlanNotFound,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
