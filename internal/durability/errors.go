// Package durability wraps every host call a worker makes with a
// begin/end protocol that decides, depending on whether the worker is
// live or replaying, whether the call should actually execute or whether
// its recorded effect should simply be trusted. Grounded directly on
// golem-worker-executor/src/durable_host/mod.rs's begin_function/
// end_function/begin_transaction_function.
package durability

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// WorkerError is the closed taxonomy of ways a worker invocation can fail,
// matching spec.md §7. Its Kind is one of the comparable WorkerErrorKind
// values below rather than a generic string, so callers branch on
// errors.As plus Kind instead of parsing messages. WorkerError has no Is
// method, so errors.Is matches only the identical *WorkerError.
type WorkerErrorKind int

const (
	ErrUnknown WorkerErrorKind = iota
	ErrInvalidRequest
	ErrStackOverflow
	ErrOutOfMemory
	ErrExceededMemoryLimit
)

type WorkerError struct {
	Kind      WorkerErrorKind
	Message   string
	RetryFrom OplogIndex // only meaningful for ErrUnknown
	cause     error
}

func (e *WorkerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *WorkerError) Unwrap() error { return e.cause }

func (k WorkerErrorKind) String() string {
	switch k {
	case ErrInvalidRequest:
		return "invalid request"
	case ErrStackOverflow:
		return "stack overflow"
	case ErrOutOfMemory:
		return "out of memory"
	case ErrExceededMemoryLimit:
		return "exceeded memory limit"
	default:
		return "unknown error"
	}
}

// NewWorkerError wraps cause into a WorkerError of the given kind.
func NewWorkerError(kind WorkerErrorKind, retryFrom OplogIndex, cause error) *WorkerError {
	we := &WorkerError{Kind: kind, RetryFrom: retryFrom, cause: cause}
	if cause != nil {
		we.Message = fmt.Sprintf("%s: %v", kind.String(), cause)
	}
	return we
}

// ErrorShape is how an external (gRPC-transported) error is categorised
// before being folded into a WorkerError, per spec.md §7 "gRPC errors are
// categorised as Transport/Status/Domain/Unexpected".
type ErrorShape int

const (
	ShapeTransport ErrorShape = iota
	ShapeStatus
	ShapeDomain
	ShapeUnexpected
)

// ClassifyExternalError inspects err (typically returned by an RPC /
// WorkerProxy call made from a WriteRemote host function) and classifies
// its shape, using google.golang.org/grpc/codes+status the same way the
// teacher's grpc dependency is used for client-side error inspection
// elsewhere in the pack, even though no gRPC server exists in this repo.
func ClassifyExternalError(err error) (ErrorShape, codes.Code) {
	if err == nil {
		return ShapeUnexpected, codes.OK
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return ShapeTransport, st.Code()
		case codes.OK:
			return ShapeUnexpected, st.Code()
		default:
			return ShapeStatus, st.Code()
		}
	}
	var domainErr *WorkerError
	if errors.As(err, &domainErr) {
		return ShapeDomain, codes.Unknown
	}
	return ShapeUnexpected, codes.Unknown
}
