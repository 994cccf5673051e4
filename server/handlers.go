package server

import (
	"encoding/json"
	"net/http"

	"github.com/landfill/clairkeys/config"
	"github.com/landfill/clairkeys/core/omr"
	"github.com/landfill/clairkeys/core/session"
	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/repository"
)

// APIHandler bundles the dependencies shared by the HTTP handlers.
type APIHandler struct {
	userRepo  repository.UserRepository
	sheetRepo repository.SheetRepository
	sessions  *session.Manager
	omrClient *omr.Client
	cfg       *config.Config
}

// NewAPIHandler creates the API handler with its dependencies.
func NewAPIHandler(
	userRepo repository.UserRepository,
	sheetRepo repository.SheetRepository,
	sessions *session.Manager,
	omrClient *omr.Client,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:  userRepo,
		sheetRepo: sheetRepo,
		sessions:  sessions,
		omrClient: omrClient,
		cfg:       cfg,
	}
}

// respondJSON writes v as a JSON response.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

// respondError writes a JSON error body.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
