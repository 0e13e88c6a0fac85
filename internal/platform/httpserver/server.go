package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	airdropclaimservice "merkledrop/contexts/token-distribution/airdrop-claim-service"
	airdroperrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	airdrophttp "merkledrop/contexts/token-distribution/airdrop-claim-service/transport/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "merkledrop/internal/platform/httpserver/docs"
)

const (
	headerUserID          = "X-User-Id"
	headerAttachedDeposit = "X-Attached-Deposit"
	headerIdempotencyKey  = "Idempotency-Key"

	maxRequestBodyBytes     = 64 << 10
	maxAllocationBatchBytes = 1 << 20
)

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	srv      *http.Server
	airdrop  airdropclaimservice.Module
	gatherer prometheus.Gatherer
}

// New registers the airdrop routes. A nil gatherer serves the default registry.
func New(
	airdrop airdropclaimservice.Module,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		airdrop:  airdrop,
		gatherer: gatherer,
	}
	s.registerRoutes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return s.srv.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /v1/airdrop/claims", s.handleClaimAirdrop)
	s.mux.HandleFunc("POST /v1/airdrop/allocation-claims", s.handleClaimAllocation)
	s.mux.HandleFunc("GET /v1/airdrop/claims/{account}", s.handleClaimStatus)
	s.mux.HandleFunc("GET /v1/airdrop/sagas/{saga_id}", s.handleGetSaga)

	s.mux.HandleFunc("GET /v1/airdrop/root", s.handleReadRoot)
	s.mux.HandleFunc("PUT /v1/airdrop/root", s.handleRotateRoot)
	s.mux.HandleFunc("GET /v1/airdrop/administrator", s.handleReadAdministrator)
	s.mux.HandleFunc("POST /v1/airdrop/administrator/transfer", s.handleTransferAdministration)

	s.mux.HandleFunc("POST /v1/airdrop/allocations", s.handleAddAllocations)
	s.mux.HandleFunc("PUT /v1/airdrop/allocations/{account}", s.handleUpdateAllocation)
	s.mux.HandleFunc("GET /v1/airdrop/allocations/{account}", s.handleCheckAllocation)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClaimAirdrop(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req airdrophttp.ClaimAirdropRequest
	if !decodeBody(w, r, maxRequestBodyBytes, &req) {
		return
	}
	resp, err := s.airdrop.Handler.ClaimAirdropHandler(r.Context(), userID, r.Header.Get(headerAttachedDeposit), req)
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleClaimAllocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.airdrop.Handler.ClaimAllocationHandler(r.Context(), userID, r.Header.Get(headerAttachedDeposit))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.ClaimStatusHandler(r.Context(), r.PathValue("account"))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSaga(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.GetSagaHandler(r.Context(), r.PathValue("saga_id"))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReadRoot(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.ReadRootHandler(r.Context())
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRotateRoot(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req airdrophttp.RootRequest
	if !decodeBody(w, r, maxRequestBodyBytes, &req) {
		return
	}
	resp, err := s.airdrop.Handler.RotateRootHandler(
		r.Context(),
		userID,
		r.Header.Get(headerAttachedDeposit),
		strings.TrimSpace(r.Header.Get(headerIdempotencyKey)),
		req,
	)
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReadAdministrator(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.ReadAdministratorHandler(r.Context())
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransferAdministration(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req airdrophttp.TransferAdministrationRequest
	if !decodeBody(w, r, maxRequestBodyBytes, &req) {
		return
	}
	resp, err := s.airdrop.Handler.TransferAdministrationHandler(
		r.Context(),
		userID,
		r.Header.Get(headerAttachedDeposit),
		strings.TrimSpace(r.Header.Get(headerIdempotencyKey)),
		req,
	)
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddAllocations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req airdrophttp.AddAllocationsRequest
	if !decodeBody(w, r, maxAllocationBatchBytes, &req) {
		return
	}
	resp, err := s.airdrop.Handler.AddAllocationsHandler(r.Context(), userID, r.Header.Get(headerAttachedDeposit), req)
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateAllocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req airdrophttp.AllocationRequest
	if !decodeBody(w, r, maxRequestBodyBytes, &req) {
		return
	}
	resp, err := s.airdrop.Handler.UpdateAllocationHandler(
		r.Context(),
		userID,
		r.Header.Get(headerAttachedDeposit),
		r.PathValue("account"),
		req,
	)
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckAllocation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.CheckAllocationHandler(r.Context(), r.PathValue("account"))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads at most limit bytes of JSON into dst and writes the error response itself.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAirdropError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return false
		}
		writeAirdropError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeAirdropError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func writeAirdropDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, airdroperrors.ErrAlreadyClaimed):
		writeAirdropError(w, http.StatusConflict, "already_claimed", err.Error())
	case errors.Is(err, airdroperrors.ErrProofInvalid):
		writeAirdropError(w, http.StatusForbidden, "proof_invalid", err.Error())
	case errors.Is(err, airdroperrors.ErrProofMalformed):
		writeAirdropError(w, http.StatusBadRequest, "proof_malformed", err.Error())
	case errors.Is(err, airdroperrors.ErrUnauthorized):
		writeAirdropError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, airdroperrors.ErrDepositRequired):
		writeAirdropError(w, http.StatusPaymentRequired, "deposit_required", err.Error())
	case errors.Is(err, airdroperrors.ErrIdempotencyKeyConflict):
		writeAirdropError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, airdroperrors.ErrSagaNotFound):
		writeAirdropError(w, http.StatusNotFound, "saga_not_found", err.Error())
	case errors.Is(err, airdroperrors.ErrAllocationNotFound):
		writeAirdropError(w, http.StatusNotFound, "allocation_not_found", err.Error())
	case errors.Is(err, airdroperrors.ErrInvalidClaimRequest),
		errors.Is(err, airdroperrors.ErrInvalidRoot),
		errors.Is(err, airdroperrors.ErrInvalidAdministrator),
		errors.Is(err, airdroperrors.ErrInvalidAllocation),
		errors.Is(err, airdroperrors.ErrNothingToClaim):
		writeAirdropError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeAirdropError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeAirdropError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, airdrophttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
