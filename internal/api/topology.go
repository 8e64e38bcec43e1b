package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joyautomation/mantle/internal/hidden"
	"github.com/joyautomation/mantle/internal/topology"
)

// TopologyHandler exposes read projections of the live topology tree.
type TopologyHandler struct {
	host   *topology.Host
	hidden *hidden.Store
}

func NewTopologyHandler(host *topology.Host, hiddenStore *hidden.Store) *TopologyHandler {
	return &TopologyHandler{host: host, hidden: hiddenStore}
}

// groupsResponse mirrors topology.Host's tree shape as a JSON-friendly
// projection (the live Host uses map[string]*T, which already marshals
// fine, but routing it through an explicit view keeps the wire shape
// independent of internal field names).
type groupsResponse struct {
	Groups map[string]groupView `json:"groups"`
}

type groupView struct {
	Nodes map[string]nodeView `json:"nodes"`
}

type nodeView struct {
	Metrics map[string]metricView `json:"metrics"`
	Devices map[string]deviceView `json:"devices"`
}

type deviceView struct {
	Metrics map[string]metricView `json:"metrics"`
}

type metricView struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
	TS    int64  `json:"ts"`
}

func valueToJSON(v topology.Value) any {
	switch v.Kind {
	case topology.KindInt:
		return v.I
	case topology.KindFloat:
		return v.F
	case topology.KindString:
		return v.S
	case topology.KindBool:
		return v.B
	default:
		return nil
	}
}

func metricToView(m *topology.Metric) metricView {
	return metricView{Type: m.Type, Value: valueToJSON(m.Value), TS: m.TS}
}

func buildGroupsResponse(host *topology.Host) groupsResponse {
	resp := groupsResponse{Groups: make(map[string]groupView, len(host.Groups))}
	for gname, g := range host.Groups {
		gv := groupView{Nodes: make(map[string]nodeView, len(g.Nodes))}
		for nname, n := range g.Nodes {
			nv := nodeView{
				Metrics: make(map[string]metricView, len(n.Metrics)),
				Devices: make(map[string]deviceView, len(n.Devices)),
			}
			for mname, m := range n.Metrics {
				nv.Metrics[mname] = metricToView(m)
			}
			for dname, d := range n.Devices {
				dv := deviceView{Metrics: make(map[string]metricView, len(d.Metrics))}
				for mname, m := range d.Metrics {
					dv.Metrics[mname] = metricToView(m)
				}
				nv.Devices[dname] = dv
			}
			gv.Nodes[nname] = nv
		}
		resp.Groups[gname] = gv
	}
	return resp
}

// Groups implements the `groups(includeHidden)` query: a snapshot of the
// topology tree, pruned through the hidden-item filter unless
// includeHidden=true is requested.
func (h *TopologyHandler) Groups(w http.ResponseWriter, r *http.Request) {
	includeHidden, _ := QueryBool(r, "includeHidden")

	snap := h.host.Snapshot()
	if !includeHidden && h.hidden != nil {
		set, err := h.hidden.Load(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "load hidden items: "+err.Error())
			return
		}
		snap = hidden.ApplyToHost(snap, set, false)
	}

	WriteJSON(w, http.StatusOK, buildGroupsResponse(snap))
}

// templateDefView mirrors topology.TemplateDef for the wire.
type templateDefView struct {
	Name    string              `json:"name"`
	Version string              `json:"version"`
	Members []templateMemberView `json:"members"`
}

type templateMemberView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TemplateDefinitions implements the `templateDefinitions` query.
func (h *TopologyHandler) TemplateDefinitions(w http.ResponseWriter, r *http.Request) {
	snap := h.host.Snapshot()
	out := make([]templateDefView, 0, len(snap.Templates))
	for _, t := range snap.Templates {
		tv := templateDefView{Name: t.Name, Version: t.Version}
		for _, m := range t.Members {
			tv.Members = append(tv.Members, templateMemberView{Name: m.Name, Type: m.Type})
		}
		out = append(out, tv)
	}
	WriteJSON(w, http.StatusOK, out)
}

// Routes registers topology routes on the given router.
func (h *TopologyHandler) Routes(r chi.Router) {
	r.Get("/groups", h.Groups)
	r.Get("/templates", h.TemplateDefinitions)
}
