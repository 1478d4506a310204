package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/service"
	"github.com/cert-registry/internal/types"
)

// handleSubmitRequest handles POST /api/requests - Submit a certification request
func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	requester, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		TargetCertifier   string `json:"targetCertifier"`
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

	input := &service.SubmitRequestInput{
		Requester:         requester,
		TargetCertifier:   req.TargetCertifier,
		SerialNumber:      req.SerialNumber,
		Brand:             req.Brand,
		Model:             req.Model,
		CertificationType: types.CertificationType(req.CertificationType),
		EstimatedValue:    req.EstimatedValue,
		MetadataURI:       req.MetadataURI,
	}

	request, err := s.requestService.Submit(r.Context(), input)
	if err != nil {
		logging.WithError(err).WithField("serialNumber", req.SerialNumber).Error("Submit failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, request)
}

// handleListRequests handles GET /api/requests?certifier=|requester=&status=
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	certifier := query.Get("certifier")
	requester := query.Get("requester")

	if (certifier == "") == (requester == "") {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Exactly one of certifier or requester is required", nil)
		return
	}

	limit, offset := parsePagination(r)

	var (
		requests []*models.CertificationRequest
		err      error
	)
	if certifier != "" {
		status := types.RequestStatus(query.Get("status"))
		requests, err = s.requestService.ListByCertifier(r.Context(), certifier, status, limit, offset)
	} else {
		requests, err = s.requestService.ListByRequester(r.Context(), requester, limit, offset)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// handleGetRequest handles GET /api/requests/:serial
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]

	request, err := s.requestService.Get(r.Context(), serial)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, request)
}

// handleApproveRequest handles POST /api/requests/:serial/approve
func (s *Server) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	certifier, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	serial := mux.Vars(r)["serial"]

	cert, err := s.requestService.Approve(r.Context(), certifier, serial)
	if err != nil {
		logging.WithError(err).WithField("serialNumber", serial).Error("Approve failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, cert)
}

// handleRejectRequest handles POST /api/requests/:serial/reject
func (s *Server) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	certifier, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	serial := mux.Vars(r)["serial"]

	var req struct {
		Reason string `json:"reason"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	request, err := s.requestService.Reject(r.Context(), certifier, serial, req.Reason)
	if err != nil {
		logging.WithError(err).WithField("serialNumber", serial).Error("Reject failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, request)
}
