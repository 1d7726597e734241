package handler

import (
	"net/http"

	"contribgate/pkg/platform/httputil"
)

func (h *Handler) handleVerifyParty(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r)
	if !ok {
		return
	}
	changed, err := h.ledger.VerifyParty(r.Context(), caller, req.parsed)
	if err != nil {
		h.fail(w, r, "verify_party", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Party: req.parsed.Hex(), NewlyVerified: changed})
}

func (h *Handler) handleBatchVerifyParties(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BatchVerifyRequest](w, r)
	if !ok {
		return
	}
	result, err := h.ledger.BatchVerifyParties(r.Context(), caller, req.Parties)
	if err != nil {
		h.fail(w, r, "batch_verify_parties", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchVerifyResponse(result))
}

func (h *Handler) handleSetExchangeRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ExchangeRateRequest](w, r)
	if !ok {
		return
	}
	change, err := h.ledger.SetExchangeRate(r.Context(), caller, req.parsed)
	if err != nil {
		h.fail(w, r, "set_exchange_rate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRateChangeResponse(change))
}

func (h *Handler) handleSetTreasury(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TreasuryRequest](w, r)
	if !ok {
		return
	}
	change, err := h.ledger.SetTreasury(r.Context(), caller, req.parsed)
	if err != nil {
		h.fail(w, r, "set_treasury", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TreasuryChangeResponse{
		OldTreasury: change.OldTreasury.Hex(),
		NewTreasury: change.NewTreasury.Hex(),
	})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Pause(r.Context(), caller); err != nil {
		h.fail(w, r, "pause", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PausedResponse{Paused: true})
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Unpause(r.Context(), caller); err != nil {
		h.fail(w, r, "unpause", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PausedResponse{Paused: false})
}

func (h *Handler) handleAddVerifier(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifierRequest](w, r)
	if !ok {
		return
	}
	if err := h.ledger.AddVerifier(r.Context(), caller, req.parsed); err != nil {
		h.fail(w, r, "add_verifier", err)
		return
	}
	h.writeVerifiers(w, r)
}

func (h *Handler) handleRemoveVerifier(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	verifier, ok := pathAddress(w, r)
	if !ok {
		return
	}
	if err := h.ledger.RemoveVerifier(r.Context(), caller, verifier); err != nil {
		h.fail(w, r, "remove_verifier", err)
		return
	}
	h.writeVerifiers(w, r)
}

func (h *Handler) writeVerifiers(w http.ResponseWriter, r *http.Request) {
	verifiers, err := h.ledger.Verifiers(r.Context())
	if err != nil {
		h.fail(w, r, "list_verifiers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerifiersResponse(verifiers))
}
