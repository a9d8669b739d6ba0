package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/anchor"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain/simulated"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/signer"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/store"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/submitter"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/verifier"
)

const novaJSON = `{"agentId":"nova-001","sourceEmbodimentId":"edge-A","targetEmbodimentId":"cloud-B","identityCommitment":"agent_nova-001","missionCommitment":"mission_v1","jurisdiction":"COVENANT_TREASURY_TRUST"}`

type harness struct {
	ledger *simulated.Ledger
	client *anchor.Client
	key    *signer.KeySigner
}

func newHarness(t *testing.T, withJournal bool) *harness {
	t.Helper()
	b, err := chain.NewBinding(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), nil)
	require.NoError(t, err)
	key, err := signer.Generate()
	require.NoError(t, err)
	funds := new(big.Int).Mul(big.NewInt(10), big.NewInt(1_000_000_000_000_000_000))
	ledger := simulated.New(31337, b, simulated.WithFunds(key.Address(), funds))

	opts := []anchor.Option{anchor.WithSubmitter(submitter.Options{Timeout: 2 * time.Second, PollInterval: 5 * time.Millisecond})}
	if withJournal {
		j, db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		opts = append(opts, anchor.WithJournal(j))
	}
	c, err := anchor.New(context.Background(), ledger, b, opts...)
	require.NoError(t, err)
	return &harness{ledger: ledger, client: c, key: key}
}

func (h *harness) server(opts Options) http.Handler {
	return NewServer(h.client, opts).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

func TestAnchorVerifyRoundTrip(t *testing.T) {
	h := newHarness(t, true)
	srv := h.server(Options{Signer: h.key})

	w := do(t, srv, http.MethodPost, "/anchor", novaJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp anchorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.TxHash)
	assert.Equal(t, int64(31337), resp.ChainID)
	assert.NotEmpty(t, resp.GasCostWei)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, srv, http.MethodPost, "/verify", `{"packet":`+novaJSON+`,"fromBlock":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	var report verifier.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.True(t, report.Verified)
	require.NotNil(t, report.Match)
	assert.Equal(t, resp.TxHash, report.Match.TxHash.Hex())

	w = do(t, srv, http.MethodGet, "/events?agentId=nova-001&fromBlock=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	var batch struct {
		Events  []contracts.NotarizationEvent `json:"events"`
		Skipped int                           `json:"skipped"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&batch))
	assert.Len(t, batch.Events, 1)

	w = do(t, srv, http.MethodGet, "/receipts?agentId=nova-001", "")
	require.Equal(t, http.StatusOK, w.Code)
	var receipts struct {
		Records []store.AnchorRecord `json:"records"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&receipts))
	require.Len(t, receipts.Records, 1)
	assert.Equal(t, store.StatusConfirmed, receipts.Records[0].Status)
}

func TestAnchor_LegacyAliases(t *testing.T) {
	h := newHarness(t, false)
	srv := h.server(Options{Signer: h.key})

	body := `{"agentId":"nova-001","sourceId":"edge-A","targetId":"cloud-B","identityHash":"agent_nova-001","missionHash":"mission_v1"}`
	w := do(t, srv, http.MethodPost, "/anchor", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodPost, "/verify", `{"packet":`+novaJSON+`}`)
	var report verifier.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.True(t, report.Verified)
}

func TestAnchor_NoSigner(t *testing.T) {
	h := newHarness(t, false)
	w := do(t, h.server(Options{}), http.MethodPost, "/anchor", novaJSON)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, contracts.KindMissingSigner, p.Kind)
	assert.Equal(t, contracts.OutcomeInvalid, p.Outcome)
}

func TestAnchor_InvalidInput(t *testing.T) {
	h := newHarness(t, false)
	srv := h.server(Options{Signer: h.key})

	w := do(t, srv, http.MethodPost, "/anchor", `{"agentId":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, contracts.KindInvalidInput, decodeProblem(t, w).Kind)

	w = do(t, srv, http.MethodPost, "/anchor", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerify_NotFoundIsFalse(t *testing.T) {
	h := newHarness(t, false)
	w := do(t, h.server(Options{}), http.MethodPost, "/verify", `{"packet":`+novaJSON+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	var report verifier.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.False(t, report.Verified)
}

func TestVerify_MissingAgentIsBadRequest(t *testing.T) {
	h := newHarness(t, false)
	srv := h.server(Options{Signer: h.key})
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/anchor", novaJSON).Code)

	anon := strings.Replace(novaJSON, `"agentId":"nova-001",`, "", 1)
	w := do(t, srv, http.MethodPost, "/verify", `{"packet":`+anon+`}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, contracts.KindInvalidInput, decodeProblem(t, w).Kind)
}

func TestEvents_BadRange(t *testing.T) {
	h := newHarness(t, false)
	srv := h.server(Options{})

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/events?fromBlock=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/events?fromBlock=10&toBlock=2", "").Code)

	w := do(t, srv, http.MethodGet, "/events?toBlock=latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestHealthAndInfo(t *testing.T) {
	h := newHarness(t, false)
	srv := h.server(Options{Signer: h.key})

	w := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.True(t, health.ChainConnected)
	assert.True(t, health.SignerLoaded)
	assert.False(t, health.JournalEnabled)

	w = do(t, srv, http.MethodGet, "/contract-info", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0x5FbDB2315678afecb367f032d93F642f64180aa3")

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/receipts?agentId=x", "").Code)

	h.ledger.SetOffline(true)
	w = do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, srv, http.MethodGet, "/contract-info", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, contracts.OutcomeNotAttempted, decodeProblem(t, w).Outcome)
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAnchor_RequiresBearerWhenConfigured(t *testing.T) {
	h := newHarness(t, false)
	srv := h.server(Options{Signer: h.key, JWTSecret: "s3cret"})

	w := do(t, srv, http.MethodPost, "/anchor", novaJSON)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad := signToken(t, "other", jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	w = do(t, srv, http.MethodPost, "/anchor", novaJSON, "Authorization", "Bearer "+bad)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := signToken(t, "s3cret", jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
	w = do(t, srv, http.MethodPost, "/anchor", novaJSON, "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	good := signToken(t, "s3cret", jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	w = do(t, srv, http.MethodPost, "/anchor", novaJSON, "Authorization", "Bearer "+good)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Reads stay public.
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/verify", `{"packet":`+novaJSON+`}`).Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, false)
	srv := h.server(Options{RateLimitRPS: 1, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, srv, http.MethodGet, "/health", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestStatusFor(t *testing.T) {
	cases := map[contracts.Kind]int{
		contracts.KindInvalidInput:        http.StatusBadRequest,
		contracts.KindPolicyDenied:        http.StatusForbidden,
		contracts.KindMissingSigner:       http.StatusServiceUnavailable,
		contracts.KindSubmissionRejected:  http.StatusUnprocessableEntity,
		contracts.KindConfirmationTimeout: http.StatusAccepted,
		contracts.KindNetworkUnavailable:  http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind)
	}
}

func TestWriteKindError_CarriesTxHash(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/anchor", bytes.NewReader(nil))
	err := contracts.Errorf(contracts.KindConfirmationTimeout, "submit.await", "not confirmed").WithTx("0xfeed")
	WriteKindError(w, r, err)

	assert.Equal(t, http.StatusAccepted, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "0xfeed", p.TxHash)
	assert.Equal(t, contracts.OutcomeUnknown, p.Outcome)
	assert.Equal(t, "/anchor", p.Instance)
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/receipts", nil)
	WriteKindError(w, r, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
