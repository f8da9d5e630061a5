package httpapi

import (
	stderrors "errors"
	"net/http"

	"github.com/R3E-Network/billing_layer/internal/errors"
	"github.com/R3E-Network/billing_layer/internal/httputil"
	"github.com/R3E-Network/billing_layer/services/invoicing"
)

// serviceError maps domain errors onto transport errors. resource and id
// name what a not-found refers to.
func serviceError(err error, resource, id string) error {
	var (
		verr *invoicing.ValidationError
		rerr *invoicing.RemoteError
	)
	switch {
	case stderrors.As(err, &verr):
		se := errors.Validation(verr.Field, verr.Message)
		if verr.Line >= 0 {
			se.WithDetails("line", verr.Line)
		}
		return se
	case stderrors.Is(err, invoicing.ErrNoCompany):
		return errors.Forbidden("no company profile for this user")
	case stderrors.Is(err, invoicing.ErrNotFound):
		return errors.NotFound(resource, id)
	case stderrors.As(err, &rerr):
		se := errors.Upstream(rerr.Op+" failed", err).WithDetails("op", rerr.Op)
		if rerr.Orphaned != 0 {
			se.WithDetails("orphaned_invoice_id", rerr.Orphaned)
		}
		return se
	}
	return errors.Internal("internal error", err)
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error, resource, id string) {
	mapped := serviceError(err, resource, id)
	var se *errors.ServiceError
	if stderrors.As(mapped, &se) && se.HTTPStatus >= http.StatusInternalServerError {
		s.Logger().WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	httputil.WriteError(w, r, mapped)
}
