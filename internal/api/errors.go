package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/roomchat/internal/conversation"
	"github.com/matheus3301/roomchat/internal/fault"
)

// toStatus maps a domain failure to a gRPC status, keeping the message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, conversation.ErrClosed):
		code = codes.Aborted
	default:
		var fe *fault.Error
		if errors.As(err, &fe) {
			code = faultCode(fe)
		}
	}
	return grpcstatus.Error(code, err.Error())
}

func faultCode(fe *fault.Error) codes.Code {
	switch fe.Kind {
	case fault.Validation:
		return codes.InvalidArgument
	case fault.Transport:
		return codes.Unavailable
	case fault.Remote:
		if fe.Status == 0 {
			return codes.Unavailable
		}
		if fe.Status == 404 {
			return codes.NotFound
		}
		return codes.FailedPrecondition
	case fault.Parse, fault.Storage:
		return codes.Internal
	}
	return codes.Unknown
}
