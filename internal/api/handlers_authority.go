package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cert-registry/internal/logging"
)

// callerIdentity extracts the acting identity from request headers.
func callerIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := r.Header.Get("X-Caller-Identity")
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller identity required", nil)
		return "", false
	}
	return caller, true
}

// handleInitialize handles POST /api/authority - Bootstrap the registry
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	admin, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		Treasury string `json:"treasury"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	authority, err := s.authorityService.Initialize(r.Context(), admin, req.Treasury)
	if err != nil {
		logging.WithError(err).Error("Initialize failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, authority)
}

// handleGetAuthority handles GET /api/authority - Registry state with
// aggregated issuance statistics
func (s *Server) handleGetAuthority(w http.ResponseWriter, r *http.Request) {
	authority, err := s.authorityService.GetAuthority(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	stats, err := s.authorityService.GetStatistics(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"authority":  authority,
		"statistics": stats,
	})
}

// handleAddCertifier handles POST /api/certifiers - Accredit a certifier
func (s *Server) handleAddCertifier(w http.ResponseWriter, r *http.Request) {
	admin, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		Certifier       string `json:"certifier"`
		DisplayName     string `json:"displayName"`
		PhysicalAddress string `json:"physicalAddress"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	profile, err := s.authorityService.AddCertifier(r.Context(), admin, req.Certifier, req.DisplayName, req.PhysicalAddress)
	if err != nil {
		logging.WithError(err).WithField("certifier", req.Certifier).Error("AddCertifier failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, profile)
}

// handleListCertifiers handles GET /api/certifiers - List accredited certifiers
func (s *Server) handleListCertifiers(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.authorityService.ListCertifiers(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"certifiers": profiles,
		"count":      len(profiles),
	})
}

// handleGetCertifier handles GET /api/certifiers/:identity - Certifier statistics
func (s *Server) handleGetCertifier(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]

	stats, err := s.authorityService.GetCertifier(r.Context(), identity)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleRemoveCertifier handles DELETE /api/certifiers/:identity - Revoke accreditation
func (s *Server) handleRemoveCertifier(w http.ResponseWriter, r *http.Request) {
	admin, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	identity := mux.Vars(r)["identity"]

	if err := s.authorityService.RemoveCertifier(r.Context(), admin, identity); err != nil {
		logging.WithError(err).WithField("certifier", identity).Error("RemoveCertifier failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"certifier": identity,
	})
}
