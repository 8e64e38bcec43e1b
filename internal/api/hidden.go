package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joyautomation/mantle/internal/cascade"
	"github.com/joyautomation/mantle/internal/hidden"
	"github.com/joyautomation/mantle/internal/topology"
)

// HiddenHandler exposes the `hiddenItems` query plus the hide/unhide/
// delete mutations.
type HiddenHandler struct {
	hidden  *hidden.Store
	cascade *cascade.Engine
}

func NewHiddenHandler(hiddenStore *hidden.Store, cascadeEngine *cascade.Engine) *HiddenHandler {
	return &HiddenHandler{hidden: hiddenStore, cascade: cascadeEngine}
}

type hiddenItemRequest struct {
	Group  string `json:"group"`
	Node   string `json:"node"`
	Device string `json:"device"`
	Metric string `json:"metric"`
}

// List implements the `hiddenItems` query, returning every hidden_items
// row via hidden.Store.ListItems.
func (h *HiddenHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.hidden.ListItems(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load hidden items: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

// Hide implements the `hide` mutation for node/device/metric granularity,
// distinguished by which of Device/Metric are empty in the request body.
func (h *HiddenHandler) Hide(w http.ResponseWriter, r *http.Request) {
	var req hiddenItemRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	if req.Group == "" || req.Node == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "group and node are required")
		return
	}
	item := hidden.Item{Group: req.Group, Node: req.Node, Device: req.Device, Metric: req.Metric}
	if err := h.hidden.Hide(r.Context(), item); err != nil {
		WriteError(w, http.StatusInternalServerError, "hide item: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// Unhide implements the `unhide` mutation.
func (h *HiddenHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	var req hiddenItemRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	if err := h.hidden.Unhide(r.Context(), req.Group, req.Node, req.Device, req.Metric); err != nil {
		WriteError(w, http.StatusInternalServerError, "unhide item: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete implements the `delete` mutation: deleteNode, deleteDevice, or
// deleteMetric, selected by which of Device/Metric are present.
func (h *HiddenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req hiddenItemRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	if req.Group == "" || req.Node == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "group and node are required")
		return
	}

	ctx := r.Context()
	var err error
	switch {
	case req.Metric != "":
		err = h.cascade.DeleteMetric(ctx, topology.Identity{Group: req.Group, Node: req.Node, Device: req.Device, Metric: req.Metric})
	case req.Device != "":
		err = h.cascade.DeleteDevice(ctx, req.Group, req.Node, req.Device)
	default:
		err = h.cascade.DeleteNode(ctx, req.Group, req.Node)
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "delete: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Routes registers hidden-item routes on the given router.
func (h *HiddenHandler) Routes(r chi.Router) {
	r.Get("/hidden-items", h.List)
	r.Post("/hidden-items", h.Hide)
	r.Delete("/hidden-items", h.Unhide)
	r.Post("/delete", h.Delete)
}
