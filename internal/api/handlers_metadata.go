package api

import (
	"encoding/base64"
	"net/http"

	"github.com/cert-registry/internal/ipfs"
	"github.com/cert-registry/internal/logging"
)

// handleUploadImage handles POST /api/upload/image - Store a watch photo on IPFS
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
		Data     string `json:"data"` // base64-encoded image bytes
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.Filename == "" || req.Data == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "filename and data are required", nil)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "data must be base64 encoded", nil)
		return
	}

	result, err := s.metadataService.UploadImage(r.Context(), data, req.Filename)
	if err != nil {
		logging.WithError(err).WithField("filename", req.Filename).Error("UploadImage failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleCreateMetadata handles POST /api/metadata - Build and store certificate metadata
func (s *Server) handleCreateMetadata(w http.ResponseWriter, r *http.Request) {
	var meta ipfs.Metadata
	if err := parseJSONBody(r, &meta); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if meta.Name == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "name is required", nil)
		return
	}

	result, err := s.metadataService.CreateMetadata(r.Context(), &meta)
	if err != nil {
		logging.WithError(err).Error("CreateMetadata failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}
