package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joyautomation/mantle/internal/topology"
)

// MetricWriter is the authoritative command write path — implemented by
// ingress.Pipeline, which encodes the NCMD/DCMD frame and publishes it.
type MetricWriter interface {
	WriteMetric(id topology.Identity, value string) error
}

// CommandHandler exposes the `writeMetric` mutation.
type CommandHandler struct {
	writer MetricWriter
}

func NewCommandHandler(writer MetricWriter) *CommandHandler {
	return &CommandHandler{writer: writer}
}

type writeMetricRequest struct {
	Group  string `json:"group"`
	Node   string `json:"node"`
	Device string `json:"device"`
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// WriteMetric publishes a command frame carrying a single metric with its
// type inferred from the value string.
func (h *CommandHandler) WriteMetric(w http.ResponseWriter, r *http.Request) {
	var req writeMetricRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	if req.Group == "" || req.Node == "" || req.Metric == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "group, node and metric are required")
		return
	}

	id := topology.Identity{Group: req.Group, Node: req.Node, Device: req.Device, Metric: req.Metric}
	if err := h.writer.WriteMetric(id, req.Value); err != nil {
		WriteError(w, http.StatusBadGateway, "publish command: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Routes registers command routes on the given router.
func (h *CommandHandler) Routes(r chi.Router) {
	r.Post("/write-metric", h.WriteMetric)
}
