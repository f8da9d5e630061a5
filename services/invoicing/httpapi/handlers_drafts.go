package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/internal/errors"
	"github.com/R3E-Network/billing_layer/internal/httputil"
	"github.com/R3E-Network/billing_layer/internal/logging"
	"github.com/R3E-Network/billing_layer/services/invoicing"
)

// DraftPatch edits draft header fields. Absent fields are left alone.
type DraftPatch struct {
	CustomerID *int64  `json:"customer_id"`
	IssueDate  *string `json:"issue_date"`
	Status     *string `json:"status"`
}

// LinePatch edits one draft line. A product is applied before quantity and
// price, so an explicit unit_price overrides the catalog price.
type LinePatch struct {
	ProductID *int64           `json:"product_id"`
	Quantity  *int             `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// AddLineResponse reports the index of the new line.
type AddLineResponse struct {
	Index int       `json:"index"`
	Draft DraftView `json:"draft"`
}

// caller resolves the authenticated user and their company. The returned
// request carries the company ID for logging.
func (s *Service) caller(w http.ResponseWriter, r *http.Request) (string, int64, *http.Request, bool) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return "", 0, r, false
	}
	companyID, err := s.invoicing.CompanyFor(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "company", userID)
		return "", 0, r, false
	}
	return userID, companyID, r.WithContext(logging.WithCompanyID(r.Context(), companyID)), true
}

func (s *Service) session(w http.ResponseWriter, r *http.Request) (*invoicing.Session, bool) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return nil, false
	}
	id := mux.Vars(r)["id"]
	sess, err := s.sessions.Get(id, userID)
	if err != nil {
		s.writeError(w, r, err, "draft", id)
		return nil, false
	}
	return sess, true
}

func lineIndex(r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	return idx, err == nil
}

func (s *Service) handleOpenDraft(w http.ResponseWriter, r *http.Request) {
	userID, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	composer, err := s.invoicing.NewComposer(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err, "company", strconv.FormatInt(companyID, 10))
		return
	}
	sess := s.sessions.Open(userID, companyID, composer)

	var view DraftView
	_ = sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		view = s.draftView(sess.ID, c)
		return nil
	})
	s.Logger().WithContext(r.Context()).WithField("draft_id", sess.ID).Debug("draft opened")
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (s *Service) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var view DraftView
	_ = sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		view = s.draftView(sess.ID, c)
		return nil
	})
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (s *Service) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var patch DraftPatch
	if !httputil.DecodeJSON(w, r, &patch) {
		return
	}

	var (
		issueDate time.Time
		status    invoicing.Status
		err       error
	)
	if patch.IssueDate != nil {
		issueDate, err = time.Parse(dateLayout, strings.TrimSpace(*patch.IssueDate))
		if err != nil {
			httputil.WriteError(w, r, errors.Validation("issue_date", "issue_date must be YYYY-MM-DD"))
			return
		}
	}
	if patch.Status != nil {
		status, err = invoicing.ParseStatus(*patch.Status)
		if err != nil {
			httputil.WriteError(w, r, errors.Validation("status", err.Error()))
			return
		}
	}

	var view DraftView
	err = sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		if patch.CustomerID != nil {
			if err := c.SetCustomer(r.Context(), *patch.CustomerID); err != nil {
				return err
			}
		}
		if patch.IssueDate != nil {
			c.SetIssueDate(issueDate)
		}
		if patch.Status != nil {
			if err := c.SetStatus(status); err != nil {
				return err
			}
		}
		view = s.draftView(sess.ID, c)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, "draft", sess.ID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (s *Service) handleCancelDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	_ = sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		c.Cancel()
		return nil
	})
	s.sessions.Close(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleAddLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var resp AddLineResponse
	_ = sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		resp.Index = c.AddLine()
		resp.Draft = s.draftView(sess.ID, c)
		return nil
	})
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (s *Service) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, ok := lineIndex(r)
	if !ok {
		httputil.BadRequest(w, "invalid line index")
		return
	}
	var patch LinePatch
	if !httputil.DecodeJSON(w, r, &patch) {
		return
	}

	var view DraftView
	err := sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		if idx >= len(c.Draft().Lines) {
			return invoicing.ErrNotFound
		}
		if patch.ProductID != nil {
			if err := c.SetLineProduct(r.Context(), idx, *patch.ProductID); err != nil {
				return err
			}
		}
		if patch.Quantity != nil {
			c.SetLineQuantity(idx, *patch.Quantity)
		}
		if patch.UnitPrice != nil {
			c.SetLineUnitPrice(idx, *patch.UnitPrice)
		}
		view = s.draftView(sess.ID, c)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, "line", strconv.Itoa(idx))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (s *Service) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, ok := lineIndex(r)
	if !ok {
		httputil.BadRequest(w, "invalid line index")
		return
	}
	var view DraftView
	err := sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		if idx >= len(c.Draft().Lines) {
			return invoicing.ErrNotFound
		}
		c.RemoveLine(idx)
		view = s.draftView(sess.ID, c)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, "line", strconv.Itoa(idx))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (s *Service) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := logging.WithCompanyID(r.Context(), sess.CompanyID)

	var inv *invoicing.PersistedInvoice
	err := sess.Do(s.sessions.Now(), func(c *invoicing.Composer) error {
		var err error
		inv, err = c.Submit(ctx)
		return err
	})
	if err != nil {
		s.writeError(w, r, err, "draft", sess.ID)
		return
	}

	// Reload to pick up customer and product names.
	if stored, err := s.invoicing.GetInvoice(ctx, sess.CompanyID, inv.ID); err == nil {
		inv = stored
	} else {
		s.Logger().WithContext(ctx).WithError(err).WithField("invoice_id", inv.ID).Warn("reload after submit failed")
	}
	httputil.WriteJSON(w, http.StatusCreated, s.invoiceView(inv))
}
