// Package api is the HTTP transport for the anchoring service. Handlers
// decode requests, call the core facade and render results; errors use
// RFC 7807 problem documents extended with the failure kind and outcome.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

const problemBase = "https://anchorchain.dev/errors/"

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses must use this format.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`

	// Kind and Outcome carry the failure taxonomy so clients can pick a
	// retry policy without parsing Detail.
	Kind    contracts.Kind    `json:"kind,omitempty"`
	Outcome contracts.Outcome `json:"outcome,omitempty"`
	TxHash  string            `json:"tx_hash,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:    fmt.Sprintf("%s%d", problemBase, status),
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: w.Header().Get("X-Request-ID"),
	})
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="anchorchain"`)
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error", "path", r.URL.Path, "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// StatusFor maps a failure kind to an HTTP status.
func StatusFor(k contracts.Kind) int {
	switch k {
	case contracts.KindInvalidInput:
		return http.StatusBadRequest
	case contracts.KindPolicyDenied:
		return http.StatusForbidden
	case contracts.KindSubmissionRejected:
		return http.StatusUnprocessableEntity
	case contracts.KindConfirmationTimeout:
		// The transaction was accepted and may still be included.
		return http.StatusAccepted
	case contracts.KindMissingSigner, contracts.KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	case contracts.KindDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteKindError renders a classified error. Unclassified errors become 500s
// with the detail withheld.
func WriteKindError(w http.ResponseWriter, r *http.Request, err error) {
	var e *contracts.Error
	if !errors.As(err, &e) {
		WriteInternal(w, r, err)
		return
	}
	status := StatusFor(e.Kind)
	detail := err.Error()
	if e.Kind == contracts.KindMissingSigner {
		detail = "this server has no signing key configured"
	}
	writeProblem(w, &ProblemDetail{
		Type:     problemBase + string(e.Kind),
		Title:    string(e.Kind),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
		Kind:     e.Kind,
		Outcome:  e.Kind.Outcome(),
		TxHash:   e.TxHash,
	})
}
