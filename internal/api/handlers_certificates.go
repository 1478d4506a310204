package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/service"
	"github.com/cert-registry/internal/types"
)

// parsePagination reads limit/offset query parameters with defaults.
// Upper bounds are enforced by the service layer.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0

	query := r.URL.Query()
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

// handleIssueCertificate handles POST /api/certificates - Direct issuance by a certifier
func (s *Server) handleIssueCertificate(w http.ResponseWriter, r *http.Request) {
	certifier, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		Owner             string `json:"owner"`
		SerialNumber      string `json:"serialNumber"`
		Brand             string `json:"brand"`
		Model             string `json:"model"`
		CertificationType string `json:"certificationType"`
		EstimatedValue    uint64 `json:"estimatedValue"`
		MetadataURI       string `json:"metadataUri"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	input := &service.IssueCertificateInput{
		Certifier:         certifier,
		Owner:             req.Owner,
		SerialNumber:      req.SerialNumber,
		Brand:             req.Brand,
		Model:             req.Model,
		CertificationType: types.CertificationType(req.CertificationType),
		EstimatedValue:    req.EstimatedValue,
		MetadataURI:       req.MetadataURI,
	}

	cert, err := s.certificateService.Issue(r.Context(), input)
	if err != nil {
		logging.WithError(err).WithField("serialNumber", req.SerialNumber).Error("Issue failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, cert)
}

// handleListCertificates handles GET /api/certificates?owner=|certifier= - Filtered listing
func (s *Server) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	owner := query.Get("owner")
	certifier := query.Get("certifier")

	if (owner == "") == (certifier == "") {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Exactly one of owner or certifier is required", nil)
		return
	}

	limit, offset := parsePagination(r)

	var (
		certs []*models.Certificate
		err   error
	)
	if owner != "" {
		certs, err = s.certificateService.ListByOwner(r.Context(), owner, limit, offset)
	} else {
		certs, err = s.certificateService.ListByCertifier(r.Context(), certifier, limit, offset)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"certificates": certs,
		"count":        len(certs),
	})
}

// handleVerifyCertificate handles GET /api/certificates/:serial - Public verification
func (s *Server) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]

	result, err := s.certificateService.Verify(r.Context(), serial)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCertificateHistory handles GET /api/certificates/:serial/history - Audit trail
func (s *Server) handleCertificateHistory(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	limit, _ := parsePagination(r)

	events, err := s.certificateService.History(r.Context(), serial, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"serialNumber": serial,
		"events":       events,
		"count":        len(events),
	})
}

// handleTransferCertificate handles POST /api/certificates/:serial/transfer
func (s *Server) handleTransferCertificate(w http.ResponseWriter, r *http.Request) {
	from, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	serial := mux.Vars(r)["serial"]

	var req struct {
		To string `json:"to"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	input := &service.TransferCertificateInput{
		From:         from,
		To:           req.To,
		SerialNumber: serial,
	}

	cert, err := s.certificateService.Transfer(r.Context(), input)
	if err != nil {
		logging.WithError(err).WithField("serialNumber", serial).Error("Transfer failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cert)
}
