package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joyautomation/mantle/internal/storage"
	"github.com/joyautomation/mantle/internal/topology"
	"github.com/joyautomation/mantle/internal/usage"
)

// HistoryHandler exposes the `history`, `usage`, and `storageStats`
// queries.
type HistoryHandler struct {
	store *storage.Store
}

func NewHistoryHandler(store *storage.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

type seriesPoint struct {
	TS    int64 `json:"ts"`
	Value any   `json:"value"`
}

type identitySeriesView struct {
	Group  string        `json:"group"`
	Node   string        `json:"node"`
	Device string        `json:"device,omitempty"`
	Metric string        `json:"metric"`
	Points []seriesPoint `json:"points"`
}

// History implements the `history(metrics,start,end,interval?,samples?,raw?)`
// query: ?metrics=G1/N1//temp,G1/N1/D1/pressure&start=...&end=...
func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	rawMetrics := QueryStringList(r, "metrics")
	if len(rawMetrics) == 0 {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "metrics is required (comma-separated group/node/device/metric keys)")
		return
	}

	var identities []topology.Identity
	for _, m := range rawMetrics {
		id, ok := parseSlashIdentity(m)
		if !ok {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid metric key: "+m)
			return
		}
		identities = append(identities, id)
	}

	start, ok := QueryInt64(r, "start")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "start is required (ms since epoch)")
		return
	}
	end, ok := QueryInt64(r, "end")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "end is required (ms since epoch)")
		return
	}
	interval, _ := QueryInt64(r, "interval")
	samples, ok := QueryInt(r, "samples")
	if !ok {
		samples = 100
	}
	raw, _ := QueryBool(r, "raw")

	result, err := h.store.QueryWindow(r.Context(), storage.QueryWindowOptions{
		Identities: identities,
		Start:      start,
		End:        end,
		Interval:   interval,
		Samples:    samples,
		Raw:        raw,
		LeftEdge:   true,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query window: "+err.Error())
		return
	}

	out := make([]identitySeriesView, 0, len(result))
	for _, series := range result {
		v := identitySeriesView{
			Group:  series.Identity.Group,
			Node:   series.Identity.Node,
			Device: series.Identity.Device,
			Metric: series.Identity.Metric,
		}
		for _, p := range series.Points {
			v.Points = append(v.Points, seriesPoint{TS: p.TS, Value: valueToJSON(p.Value)})
		}
		out = append(out, v)
	}
	WriteJSON(w, http.StatusOK, out)
}

// parseSlashIdentity parses "group/node/device/metric" (device may be
// empty: "group/node//metric") into a topology.Identity.
func parseSlashIdentity(s string) (topology.Identity, bool) {
	parts := strings.SplitN(s, "/", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[3] == "" {
		return topology.Identity{}, false
	}
	return topology.Identity{Group: parts[0], Node: parts[1], Device: parts[2], Metric: parts[3]}, true
}

// Usage implements the `usage` query.
func (h *HistoryHandler) Usage(w http.ResponseWriter, r *http.Request) {
	stats, err := usage.Usage(r.Context(), h.store.Pool)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "usage: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// StorageStats implements the `storageStats` query.
func (h *HistoryHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := usage.StorageStats(r.Context(), h.store.Pool)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "storage stats: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Routes registers history/usage/storage-stats routes on the given router.
func (h *HistoryHandler) Routes(r chi.Router) {
	r.Get("/history", h.History)
	r.Get("/usage", h.Usage)
	r.Get("/storage-stats", h.StorageStats)
}
