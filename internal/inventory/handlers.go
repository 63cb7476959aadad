package inventory

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spn-retail/backend-pos/internal/common"
)

// Handler exposes stock and outlet endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

func (h *Handler) guard(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "inventory service not configured", nil)
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func queryOutletID(r *http.Request) *int64 {
	raw := r.URL.Query().Get("outletId")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// CreateStock handles POST /api/v1/stock.
func (h *Handler) CreateStock(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	var req CreateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", nil)
		return
	}
	if appErr := common.ValidateStruct("INVALID_REQUEST", req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	record, err := h.service.CreateStock(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": record})
}

// UpdateStock handles PUT /api/v1/stock/{stockID}.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	stockID, ok := pathID(r, "stockID")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "stock id must be a positive integer", nil)
		return
	}
	var req UpdateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", nil)
		return
	}
	if appErr := common.ValidateStruct("INVALID_REQUEST", req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	record, err := h.service.UpdateStock(r.Context(), stockID, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": record})
}

// ListStock handles GET /api/v1/stock.
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	records, err := h.service.ListStock(r.Context(), r.URL.Query().Get("productId"), queryOutletID(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": records})
}

// DeleteStock handles DELETE /api/v1/stock/{stockID}.
func (h *Handler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	stockID, ok := pathID(r, "stockID")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "stock id must be a positive integer", nil)
		return
	}
	if err := h.service.DeleteStock(r.Context(), stockID); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LowStock handles GET /api/v1/stock/low.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	entries, err := h.service.LowStock(r.Context(), queryOutletID(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

// CreateOutlet handles POST /api/v1/stock/outlets.
func (h *Handler) CreateOutlet(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	var req CreateOutletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", nil)
		return
	}
	if appErr := common.ValidateStruct("INVALID_REQUEST", req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	outlet, err := h.service.CreateOutlet(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": outlet})
}

// ListOutlets handles GET /api/v1/stock/outlets.
func (h *Handler) ListOutlets(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	activeOnly := r.URL.Query().Get("activeOnly") == "true"
	outlets, err := h.service.ListOutlets(r.Context(), activeOnly)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": outlets})
}

// GetOutlet handles GET /api/v1/stock/outlets/{outletID}.
func (h *Handler) GetOutlet(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	outletID, ok := pathID(r, "outletID")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "outlet id must be a positive integer", nil)
		return
	}
	outlet, err := h.service.GetOutlet(r.Context(), outletID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": outlet})
}

// UpdateOutlet handles PUT /api/v1/stock/outlets/{outletID}.
func (h *Handler) UpdateOutlet(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	outletID, ok := pathID(r, "outletID")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "outlet id must be a positive integer", nil)
		return
	}
	var req UpdateOutletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", nil)
		return
	}
	if appErr := common.ValidateStruct("INVALID_REQUEST", req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	outlet, err := h.service.UpdateOutlet(r.Context(), outletID, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": outlet})
}

// DeleteOutlet handles DELETE /api/v1/stock/outlets/{outletID}.
func (h *Handler) DeleteOutlet(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	outletID, ok := pathID(r, "outletID")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "outlet id must be a positive integer", nil)
		return
	}
	if err := h.service.DeleteOutlet(r.Context(), outletID); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
