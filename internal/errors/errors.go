// Package errors classifies failures reported by ownership and history
// sources so schedulers can decide whether to retry a calculation.
package errors

import (
	"context"
	stderrors "errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsRetryable reports whether a failed calculation is worth retrying in a
// later cycle. Timeouts and transient gRPC failures are; cancellation and
// everything else are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// Code returns the gRPC code of err, codes.DeadlineExceeded or
// codes.Canceled for context errors, and codes.Unknown otherwise.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case stderrors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case stderrors.Is(err, context.Canceled):
		return codes.Canceled
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// Unavailable returns an error reporting that a source could not be reached.
func Unavailable(format string, args ...any) error {
	return status.Errorf(codes.Unavailable, format, args...)
}

// InvalidArgument returns an error reporting a request a source rejected.
func InvalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
