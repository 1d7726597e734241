package handler

import (
	"net/http"

	"contribgate/pkg/platform/httputil"
)

func (h *Handler) handleGetPartyInfo(w http.ResponseWriter, r *http.Request) {
	party, ok := pathAddress(w, r)
	if !ok {
		return
	}
	info, err := h.ledger.GetPartyInfo(r.Context(), party)
	if err != nil {
		h.fail(w, r, "get_party_info", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPartyInfoResponse(info))
}

func (h *Handler) handleIsVerified(w http.ResponseWriter, r *http.Request) {
	party, ok := pathAddress(w, r)
	if !ok {
		return
	}
	verified, err := h.ledger.IsVerified(r.Context(), party)
	if err != nil {
		h.fail(w, r, "is_verified", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifiedResponse{Party: party.Hex(), Verified: verified})
}

func (h *Handler) handleGetRemainingCapacity(w http.ResponseWriter, r *http.Request) {
	party, ok := pathAddress(w, r)
	if !ok {
		return
	}
	remaining, err := h.ledger.GetRemainingCapacity(r.Context(), party)
	if err != nil {
		h.fail(w, r, "get_remaining_capacity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CapacityResponse{
		Party:             party.Hex(),
		RemainingCapacity: remaining.String(),
		RemainingUnits:    remaining.Units(),
	})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	party, ok := pathAddress(w, r)
	if !ok {
		return
	}
	events, err := h.ledger.ListEvents(r.Context(), party)
	if err != nil {
		h.fail(w, r, "list_events", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventsResponse(events))
}

func (h *Handler) handleGetCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GetCampaignStats(r.Context())
	if err != nil {
		h.fail(w, r, "get_campaign_stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatsResponse(stats))
}

func (h *Handler) handleGetMaxContributionAsset(w http.ResponseWriter, r *http.Request) {
	limit, err := h.ledger.GetMaxContributionAsset(r.Context())
	if err != nil {
		h.fail(w, r, "get_max_contribution_asset", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LimitResponse{
		MaxContributionAsset: limit.String(),
		MaxContributionUnits: limit.Units(),
	})
}

func (h *Handler) handleIsPaused(w http.ResponseWriter, r *http.Request) {
	paused, err := h.ledger.IsPaused(r.Context())
	if err != nil {
		h.fail(w, r, "is_paused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PausedResponse{Paused: paused})
}

func (h *Handler) handleGetTreasury(w http.ResponseWriter, r *http.Request) {
	treasury, err := h.ledger.Treasury(r.Context())
	if err != nil {
		h.fail(w, r, "get_treasury", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TreasuryResponse{Treasury: treasury.Hex()})
}

func (h *Handler) handleListVerifiers(w http.ResponseWriter, r *http.Request) {
	verifiers, err := h.ledger.Verifiers(r.Context())
	if err != nil {
		h.fail(w, r, "list_verifiers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerifiersResponse(verifiers))
}
