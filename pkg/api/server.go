package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/anchor"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/events"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/signer"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/store"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/verifier"
)

const maxBodyBytes = 64 << 10

// Service is the slice of the core facade the transport needs.
// *anchor.Client implements it.
type Service interface {
	Anchor(ctx context.Context, p contracts.ResurrectionPacket, s signer.Signer) (*contracts.TransactionReceipt, error)
	Check(ctx context.Context, p contracts.ResurrectionPacket, fromBlock uint64) (*verifier.Report, error)
	ReadEvents(ctx context.Context, agentID string, fromBlock uint64, toBlock *uint64) (*events.Batch, error)
	Info(ctx context.Context) (*anchor.Info, error)
	Health(ctx context.Context) error
	Journal() store.Journal
}

var _ Service = (*anchor.Client)(nil)

// Options configures a Server.
type Options struct {
	// Signer is the server's own key. Without it POST /anchor answers
	// MissingSigner.
	Signer       signer.Signer
	JWTSecret    string
	RateLimitRPS float64
	Burst        int
	Logger       *slog.Logger
}

type Server struct {
	svc     Service
	signer  signer.Signer
	auth    *JWTValidator
	limiter *RateLimiter
	logger  *slog.Logger
}

func NewServer(svc Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:     svc,
		signer:  opts.Signer,
		auth:    NewJWTValidator(opts.JWTSecret),
		limiter: NewRateLimiter(opts.RateLimitRPS, opts.Burst),
		logger:  logger.With("component", "api"),
	}
}

// Handler returns the routed handler with middleware applied. Write
// endpoints require a bearer token when a JWT secret is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /anchor", RequireBearer(s.auth, http.HandlerFunc(s.handleAnchor)))
	mux.HandleFunc("POST /verify", s.handleVerify)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /contract-info", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /receipts", s.handleReceipts)

	var h http.Handler = mux
	h = s.limiter.Middleware(h)
	h = AccessLog(s.logger)(h)
	h = RequestID(h)
	return h
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.InfoContext(ctx, "api listening", "addr", addr, "auth", s.auth != nil, "signer", s.signer != nil)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// anchorResponse flattens the receipt for JSON clients.
type anchorResponse struct {
	TxHash         string  `json:"txHash"`
	BlockNumber    uint64  `json:"blockNumber"`
	GasUsed        uint64  `json:"gasUsed"`
	GasCostWei     string  `json:"gasCostWei,omitempty"`
	LatencySeconds float64 `json:"latencySeconds"`
	ChainID        int64   `json:"chainId"`
	Sender         string  `json:"sender"`
	Nonce          uint64  `json:"nonce"`
	ExplorerURL    string  `json:"explorerUrl,omitempty"`
}

func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	var p contracts.ResurrectionPacket
	if !decodeBody(w, r, &p) {
		return
	}
	if p.Jurisdiction == "" {
		p.Jurisdiction = contracts.DefaultJurisdiction
	}

	receipt, err := s.svc.Anchor(r.Context(), p, s.signer)
	if err != nil {
		s.logger.WarnContext(r.Context(), "anchor failed",
			"agent", p.AgentID, "kind", contracts.KindOf(err), "subject", Subject(r.Context()), "error", err)
		WriteKindError(w, r, err)
		return
	}
	resp := anchorResponse{
		TxHash:         receipt.TxHash.Hex(),
		BlockNumber:    receipt.BlockNumber,
		GasUsed:        receipt.GasUsed,
		LatencySeconds: receipt.Latency.Seconds(),
		ChainID:        receipt.ChainID,
		Sender:         receipt.Sender.Hex(),
		Nonce:          receipt.Nonce,
		ExplorerURL:    receipt.ExplorerURL,
	}
	if cost := receipt.GasCost(); cost != nil {
		resp.GasCostWei = cost.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	Packet    contracts.ResurrectionPacket `json:"packet"`
	FromBlock uint64                       `json:"fromBlock"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := s.svc.Check(r.Context(), req.Packet, req.FromBlock)
	if err != nil {
		WriteKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseBlock(q.Get("fromBlock"))
	if err != nil {
		WriteBadRequest(w, "fromBlock: "+err.Error())
		return
	}
	var to *uint64
	if raw := q.Get("toBlock"); raw != "" && raw != "latest" {
		n, err := parseBlock(raw)
		if err != nil {
			WriteBadRequest(w, "toBlock: "+err.Error())
			return
		}
		to = &n
	}
	if to != nil && *to < from {
		WriteBadRequest(w, "toBlock must not be before fromBlock")
		return
	}

	batch, err := s.svc.ReadEvents(r.Context(), q.Get("agentId"), from, to)
	if err != nil {
		WriteKindError(w, r, err)
		return
	}
	if batch.Events == nil {
		batch.Events = []contracts.NotarizationEvent{}
	}
	writeJSON(w, http.StatusOK, batch)
}

func parseBlock(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Info(r.Context())
	if err != nil {
		WriteKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type healthResponse struct {
	Status         string `json:"status"`
	ChainConnected bool   `json:"chainConnected"`
	ContractLoaded bool   `json:"contractLoaded"`
	SignerLoaded   bool   `json:"signerLoaded"`
	JournalEnabled bool   `json:"journalEnabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		ChainConnected: true,
		ContractLoaded: true,
		SignerLoaded:   s.signer != nil,
		JournalEnabled: s.svc.Journal() != nil,
	}
	status := http.StatusOK
	if err := s.svc.Health(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.ChainConnected = false
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	j := s.svc.Journal()
	if j == nil {
		WriteNotFound(w, "anchor journal is not enabled")
		return
	}
	agentID := r.URL.Query().Get("agentId")
	if agentID == "" {
		WriteBadRequest(w, "agentId is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			WriteBadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	recs, err := j.ListByAgent(r.Context(), agentID, limit)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agentId": agentID, "records": recs})
}
