package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cert-registry/internal/logging"
)

// handleGetBalance handles GET /api/ledger/:identity - Account balance
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]

	account, err := s.ledgerService.Balance(r.Context(), identity)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// handleGetLedgerEntries handles GET /api/ledger/:identity/entries - Movement history
func (s *Server) handleGetLedgerEntries(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	limit, offset := parsePagination(r)

	entries, err := s.ledgerService.Entries(r.Context(), identity, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"entries":  entries,
		"count":    len(entries),
	})
}

// handleFund handles POST /api/ledger/:identity/fund - Dev-mode faucet
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	account, err := s.ledgerService.Fund(r.Context(), identity, req.Amount)
	if err != nil {
		logging.WithError(err).WithField("identity", identity).Error("Fund failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}
