package handler

import (
	"net/http"

	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	"contribgate/pkg/platform/httputil"
)

func (h *Handler) handleContribute(w http.ResponseWriter, r *http.Request) {
	h.contribute(w, r, false)
}

func (h *Handler) handleContributeDirect(w http.ResponseWriter, r *http.Request) {
	h.contribute(w, r, true)
}

// contribute serves both entry points. The caller is always the party.
func (h *Handler) contribute(w http.ResponseWriter, r *http.Request, direct bool) {
	party, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ContributeRequest](w, r)
	if !ok {
		return
	}

	accept := h.ledger.Contribute
	op := "contribute"
	if direct {
		accept = h.ledger.ContributeDirect
		op = "contribute_direct"
	}
	receipt, err := accept(r.Context(), party, req.parsed)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

// handleCanContribute is a dry run; missing or malformed parameters are
// client errors, inadmissible amounts are a 200 with allowed=false.
func (h *Handler) handleCanContribute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	party, err := domain.ParseAddress(q.Get("party"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "party must be a valid address"))
		return
	}
	amount, err := domain.ParseAmount(q.Get("amount"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "amount must be a base-unit integer"))
		return
	}

	eligibility, err := h.ledger.CanContribute(r.Context(), party, amount)
	if err != nil {
		h.fail(w, r, "can_contribute", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EligibilityResponse{
		Allowed: eligibility.Allowed,
		Reason:  eligibility.Reason,
	})
}
