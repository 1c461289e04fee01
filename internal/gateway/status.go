package gateway

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"flightgate/internal/domain"
)

// statusFromError maps the domain error taxonomy onto gRPC status codes so
// Flight clients see conventional failures instead of opaque internals.
func statusFromError(err error) error {
	if err == nil {
		return nil
	}

	var (
		authErr   *domain.AuthenticationError
		ticketErr *domain.TicketError
		kindErr   *domain.UnknownProviderKindError
		critErr   *domain.UnsupportedCriteriaError
		fmtErr    *domain.UnsupportedDataFormatError
		nfErr     *domain.NotFoundError
		niErr     *domain.NotImplementedError
		valErr    *domain.ValidationError
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &ticketErr):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.As(err, &critErr), errors.As(err, &fmtErr),
		errors.As(err, &kindErr), errors.As(err, &valErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &nfErr):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &niErr):
		return status.Error(codes.Unimplemented, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
