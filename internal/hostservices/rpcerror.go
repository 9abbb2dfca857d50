package hostservices

import (
	"google.golang.org/grpc/codes"

	"github.com/golemproject/workerexec/internal/durability"
)

// RetryDecision is what an Rpc/WorkerProxy caller does after ClassifyRpcError
// returns: either the call is safe to retry transparently (a transport
// blip), or it must be surfaced to the durability wrapper's own retry-point
// machinery instead (the batched/transactional protocol, not a bare retry
// loop here).
type RetryDecision int

const (
	RetryTransparently RetryDecision = iota
	RetryViaDurability
	RetryNever
)

// ClassifyRpcError reuses durability.ClassifyExternalError's gRPC
// codes/status inspection to decide how an Rpc call's failure should be
// handled, since every outgoing worker-to-worker call is itself an
// imported host function subject to the same classification the durability
// wrapper already does for wasi-http.
func ClassifyRpcError(err error) RetryDecision {
	shape, code := durability.ClassifyExternalError(err)
	switch shape {
	case durability.ShapeTransport:
		return RetryTransparently
	case durability.ShapeStatus:
		if code == codes.FailedPrecondition || code == codes.InvalidArgument || code == codes.NotFound {
			return RetryNever
		}
		return RetryViaDurability
	case durability.ShapeDomain:
		return RetryViaDurability
	default:
		return RetryNever
	}
}
