package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/benvon/questlog/internal/catalog"
	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/logger"
	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/store"
	"github.com/benvon/questlog/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CatalogSource exposes the catalog sessions are currently evaluated against
type CatalogSource interface {
	Engine() *engine.Engine
}

// CatalogHandler serves the task catalog. When the catalog lives in the store,
// templates can be edited and every loaded session picks up the change.
type CatalogHandler struct {
	source CatalogSource
	tree   store.Tree
	log    *zap.Logger
}

// NewCatalogHandler creates a catalog handler. tree is nil for a file-backed catalog.
func NewCatalogHandler(source CatalogSource, tree store.Tree, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{source: source, tree: tree, log: log}
}

// RegisterRoutes registers catalog routes on the given router
// The router should already have the /catalog prefix
func (h *CatalogHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetCatalog).Methods("GET")
	r.HandleFunc("/tasks/{taskID}", h.PutTask).Methods("PUT")
}

// GetCatalog returns the active catalog
func (h *CatalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.source.Engine().Catalog())
}

// PutTask creates or replaces a task template in the stored catalog
func (h *CatalogHandler) PutTask(w http.ResponseWriter, r *http.Request) {
	if h.tree == nil {
		respondJSONError(w, http.StatusConflict, "Conflict", "Catalog is file-backed and cannot be edited")
		return
	}

	var tpl models.TaskTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	tpl.ID = mux.Vars(r)["taskID"]
	tpl.Name = validation.SanitizeText(tpl.Name)
	tpl.Category = validation.SanitizeText(tpl.Category)

	if err := catalog.PutTask(r.Context(), h.tree, tpl); err != nil {
		if errors.Is(err, engine.ErrValidation) {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		h.log.Error("failed_to_store_task", zap.String("task_id", logger.SanitizeTaskID(tpl.ID)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to store task")
		return
	}

	h.log.Info("catalog_task_stored", zap.String("task_id", logger.SanitizeTaskID(tpl.ID)))
	respondJSON(w, http.StatusOK, tpl)
}
