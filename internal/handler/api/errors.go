package api

import (
	"context"
	"errors"

	"SignalView/internal/snapshot"
	xhttp "SignalView/pkg/http"
)

// errorKind labels an error for metrics.
func errorKind(err error) string {
	if k := snapshot.KindOf(err); k != "" {
		return string(k)
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	return "Internal"
}

// toAppError maps snapshot failures onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	msg := err.Error()
	switch snapshot.KindOf(err) {
	case snapshot.KindSourceEmpty:
		return xhttp.NotFoundError("ERR_SOURCE_EMPTY", msg).WithError(err)
	case snapshot.KindSourceUnavailable:
		return xhttp.ServiceUnavailableError("ERR_SOURCE_UNAVAILABLE", msg).WithError(err)
	case snapshot.KindMissingOrderingColumn:
		return xhttp.UnprocessableError("ERR_MISSING_ORDERING_COLUMN", msg).WithError(err)
	case snapshot.KindFetchTimeout:
		return xhttp.GatewayTimeoutError("ERR_FETCH_TIMEOUT", msg).WithError(err)
	case snapshot.KindConfiguration:
		return xhttp.BadRequestError("ERR_CONFIGURATION", msg).WithError(err)
	}
	return xhttp.InternalError("snapshot failed").WithError(err)
}
