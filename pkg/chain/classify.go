package chain

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// rejectionMarkers are node error texts that mean the ledger answered and refused.
var rejectionMarkers = []string{
	"nonce too low",
	"nonce too high",
	"insufficient funds",
	"execution reverted",
	"underpriced",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"invalid sender",
	"gas limit reached",
	"max fee per gas less than block base fee",
}

var knownTxMarkers = []string{
	"already known",
	"known transaction",
	"alreadyknown",
}

var nonceConflictMarkers = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
}

// Classify maps a backend error onto the failure taxonomy.
//
// A JSON-RPC error object means the node was reached and refused the call
// (SubmissionRejected). Transport failures, 5xx/429 HTTP answers and
// unrecognized errors are NetworkUnavailable. nil and ethereum.NotFound
// (receipt not yet available) classify as "".
func Classify(err error) contracts.Kind {
	if err == nil || errors.Is(err, ethereum.NotFound) {
		return ""
	}
	if k := contracts.KindOf(err); k != "" {
		return k
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 429 {
			return contracts.KindNetworkUnavailable
		}
		return contracts.KindSubmissionRejected
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return contracts.KindSubmissionRejected
	}

	if containsAny(err, rejectionMarkers) || containsAny(err, knownTxMarkers) {
		return contracts.KindSubmissionRejected
	}

	switch {
	case errors.Is(err, rpc.ErrClientQuit),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return contracts.KindNetworkUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return contracts.KindNetworkUnavailable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return contracts.KindNetworkUnavailable
	}

	return contracts.KindNetworkUnavailable
}

// Wrap classifies err and returns it as a *contracts.Error for op. Already
// classified errors are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if contracts.KindOf(err) != "" {
		return err
	}
	kind := Classify(err)
	if kind == "" {
		return err
	}
	return contracts.E(kind, op, err)
}

// IsKnownTransaction reports whether the node already holds the exact
// transaction, which makes a re-broadcast a success.
func IsKnownTransaction(err error) bool {
	return err != nil && containsAny(err, knownTxMarkers)
}

// IsNonceConflict reports whether a rejection was caused by the nonce, in
// which case a resubmission needs a fresh nonce.
func IsNonceConflict(err error) bool {
	return err != nil && containsAny(err, nonceConflictMarkers)
}

func containsAny(err error, markers []string) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
