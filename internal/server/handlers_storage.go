package server

import (
	"encoding/json"
	"log"
	"net/http"
)

// handleUploadURL issues a presigned upload URL. Query parameters: fileType
// (MIME type) and folder (S3 prefix). The generated object key is returned so
// the caller can record it on the owning entity.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	fileType := r.URL.Query().Get("fileType")
	folder := r.URL.Query().Get("folder")
	if fileType == "" {
		s.errorResponse(w, http.StatusBadRequest, "fileType parameter is required")
		return
	}
	if folder == "" {
		s.errorResponse(w, http.StatusBadRequest, "folder parameter is required")
		return
	}

	url, key, err := s.objects.PresignUpload(r.Context(), folder, fileType)
	if err != nil {
		log.Printf("Failed to presign upload for folder %q: %v", folder, err)
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{"url": url, "key": key})
}

// handleDownloadURL issues a presigned download URL for an existing object.
func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	folder := r.URL.Query().Get("folder")
	if key == "" || folder == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameters: key and folder")
		return
	}

	url, err := s.objects.PresignDownload(r.Context(), folder, key)
	if err != nil {
		log.Printf("Failed to presign download for %s/%s: %v", folder, key, err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{"durl": url, "dkey": key})
}

// handleDeleteObject deletes a stored object.
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	folder := r.URL.Query().Get("folder")
	if key == "" || folder == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameters: key and folder")
		return
	}

	if err := s.objects.Delete(r.Context(), folder, key); err != nil {
		log.Printf("Failed to delete object %s/%s: %v", folder, key, err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete object")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "true",
		"message": "Object deleted successfully",
	})
}

// handleCleanup triggers a retention sweep of old terminal engine jobs. When
// an admin API key is configured, the caller must present it in the X-API-Key
// header: a missing key is 401, a wrong one 403.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if required := s.cfg.CleanupAPIKey; required != "" {
		provided := r.Header.Get("X-API-Key")
		if provided == "" {
			log.Println("Cleanup endpoint accessed without API key")
			s.errorResponse(w, http.StatusUnauthorized, "Unauthorized. API key required.")
			return
		}
		if provided != required {
			log.Println("Cleanup endpoint accessed with invalid API key")
			s.errorResponse(w, http.StatusForbidden, "Forbidden. Invalid API key.")
			return
		}
	} else {
		log.Println("Cleanup endpoint is not protected; set TRANSCRIPTION_CLEANUP_API_KEY")
	}

	days := s.cfg.CleanupDays
	var body struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Days > 0 {
		days = body.Days
	}

	result, err := s.sweeper.SweepOlderThan(r.Context(), days)
	if err != nil {
		log.Printf("Cleanup sweep failed: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":       "true",
		"message":      "Cleanup completed",
		"deletedCount": result.Deleted,
		"errorCount":   len(result.Errors),
		"errors":       result.Errors,
		"cleanupDays":  days,
	})
}
