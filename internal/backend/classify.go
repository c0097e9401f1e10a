package backend

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quangdm/partake/internal/core/domain"
)

// IsTransient reports whether an error is expected to self-resolve and is
// worth retrying. Domain errors are classified by their typed variant;
// transport errors from gRPC-backed gateways by status code. Unclassified
// errors default to transient, matching the retry-by-default posture of the
// rest of this layer: a recognized terminal condition always carries a type.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ticketErr *domain.TicketError
	if errors.As(err, &ticketErr) {
		return false
	}

	var transferErr *domain.TransferError
	if errors.As(err, &transferErr) {
		return transferErr.Kind == domain.TransferCreatedInFuture
	}

	var notifyErr *domain.NotifyError
	if errors.As(err, &notifyErr) {
		return notifyErr.Pending
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
			codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition,
			codes.Unimplemented, codes.OutOfRange:
			return false
		}
	}

	return true
}
