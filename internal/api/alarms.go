package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joyautomation/mantle/internal/alarm"
	"github.com/joyautomation/mantle/internal/merr"
	"github.com/joyautomation/mantle/internal/topology"
)

// AlarmsHandler exposes alarm rule CRUD, the state/history queries, and
// the acknowledge mutation.
type AlarmsHandler struct {
	engine *alarm.Engine
}

func NewAlarmsHandler(engine *alarm.Engine) *AlarmsHandler {
	return &AlarmsHandler{engine: engine}
}

type ruleView struct {
	ID        int64    `json:"id"`
	Group     string   `json:"group"`
	Node      string   `json:"node"`
	Device    string   `json:"device,omitempty"`
	Metric    string   `json:"metric"`
	Name      string   `json:"name"`
	RuleType  string   `json:"ruleType"`
	Threshold *float64 `json:"threshold,omitempty"`
	DelaySec  int      `json:"delaySec"`
	Enabled   bool     `json:"enabled"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

func ruleToView(r alarm.Rule) ruleView {
	return ruleView{
		ID:     r.ID,
		Group:  r.Identity.Group,
		Node:   r.Identity.Node,
		Device: r.Identity.Device,
		Metric: r.Identity.Metric,
		Name:   r.Name, RuleType: string(r.Type), Threshold: r.Threshold,
		DelaySec: r.DelaySec, Enabled: r.Enabled,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type ruleRequest struct {
	Group     string   `json:"group"`
	Node      string   `json:"node"`
	Device    string   `json:"device"`
	Metric    string   `json:"metric"`
	Name      string   `json:"name"`
	RuleType  string   `json:"ruleType"`
	Threshold *float64 `json:"threshold"`
	DelaySec  int      `json:"delaySec"`
	Enabled   *bool    `json:"enabled"`
}

func (req ruleRequest) toRule() *alarm.Rule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &alarm.Rule{
		Identity:  topology.Identity{Group: req.Group, Node: req.Node, Device: req.Device, Metric: req.Metric},
		Name:      req.Name,
		Type:      alarm.RuleType(req.RuleType),
		Threshold: req.Threshold,
		DelaySec:  req.DelaySec,
		Enabled:   enabled,
	}
}

// writeAlarmError maps the engine's error kinds onto HTTP statuses:
// invariant and programmer errors are the caller's fault, everything
// else is a server-side failure.
func writeAlarmError(w http.ResponseWriter, err error) {
	var me *merr.Error
	if errors.As(err, &me) {
		switch me.Kind {
		case merr.KindInvariant, merr.KindProgrammer:
			WriteErrorWithCode(w, http.StatusUnprocessableEntity, ErrInvalidBody, me.Error())
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}

// List implements the `alarmRules` query.
func (h *AlarmsHandler) List(w http.ResponseWriter, r *http.Request) {
	rules := h.engine.Rules()
	out := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleToView(rule))
	}
	WriteJSON(w, http.StatusOK, out)
}

// Create implements the `createAlarmRule` mutation.
func (h *AlarmsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	rule := req.toRule()
	if err := h.engine.CreateRule(r.Context(), rule); err != nil {
		writeAlarmError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, ruleToView(*rule))
}

// Update implements the `updateAlarmRule` mutation.
func (h *AlarmsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid rule id")
		return
	}
	var req ruleRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	rule := req.toRule()
	rule.ID = id
	if err := h.engine.UpdateRule(r.Context(), rule); err != nil {
		writeAlarmError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, ruleToView(*rule))
}

// Delete implements the `deleteAlarmRule` mutation; state and history
// rows cascade in the database.
func (h *AlarmsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid rule id")
		return
	}
	if err := h.engine.DeleteRule(r.Context(), id); err != nil {
		writeAlarmError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stateView struct {
	RuleID         int64    `json:"ruleId"`
	State          string   `json:"state"`
	ConditionMetAt *int64   `json:"conditionMetAt,omitempty"`
	ActivatedAt    *int64   `json:"activatedAt,omitempty"`
	LastNotifiedAt *int64   `json:"lastNotifiedAt,omitempty"`
	LastValue      *float64 `json:"lastValue,omitempty"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// States implements the `alarmStates` query.
func (h *AlarmsHandler) States(w http.ResponseWriter, r *http.Request) {
	states := h.engine.States()
	out := make([]stateView, 0, len(states))
	for _, s := range states {
		out = append(out, stateView{
			RuleID: s.RuleID, State: string(s.State),
			ConditionMetAt: s.ConditionMetAt, ActivatedAt: s.ActivatedAt,
			LastNotifiedAt: s.LastNotifiedAt, LastValue: s.LastValue,
			UpdatedAt: s.UpdatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

type historyView struct {
	ID        int64    `json:"id"`
	RuleID    int64    `json:"ruleId"`
	FromState string   `json:"fromState"`
	ToState   string   `json:"toState"`
	Value     *float64 `json:"value,omitempty"`
	TS        int64    `json:"ts"`
}

// History implements the `alarmHistory(ruleId?,start?,end?)` query.
func (h *AlarmsHandler) History(w http.ResponseWriter, r *http.Request) {
	var q alarm.HistoryQuery
	if id, ok := QueryInt64(r, "ruleId"); ok {
		q.RuleID = id
	}
	if start, ok := QueryInt64(r, "start"); ok {
		q.Start = start
	}
	if end, ok := QueryInt64(r, "end"); ok {
		q.End = end
	}
	if limit, ok := QueryInt(r, "limit"); ok {
		q.Limit = limit
	}

	entries, err := h.engine.QueryHistory(r.Context(), q)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query alarm history: "+err.Error())
		return
	}
	out := make([]historyView, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyView{
			ID: e.ID, RuleID: e.RuleID,
			FromState: string(e.FromState), ToState: string(e.ToState),
			Value: e.Value, TS: e.TS,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// Acknowledge implements the `acknowledgeAlarm` mutation. Only permitted
// while the rule is active; anything else is an invariant error.
func (h *AlarmsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid rule id")
		return
	}
	if err := h.engine.Acknowledge(r.Context(), id); err != nil {
		writeAlarmError(w, err)
		return
	}
	state, _ := h.engine.StateFor(id)
	WriteJSON(w, http.StatusOK, stateView{
		RuleID: state.RuleID, State: string(state.State),
		ConditionMetAt: state.ConditionMetAt, ActivatedAt: state.ActivatedAt,
		LastNotifiedAt: state.LastNotifiedAt, LastValue: state.LastValue,
		UpdatedAt: state.UpdatedAt,
	})
}

// Routes registers alarm routes on the given router.
func (h *AlarmsHandler) Routes(r chi.Router) {
	r.Get("/alarm-rules", h.List)
	r.Post("/alarm-rules", h.Create)
	r.Put("/alarm-rules/{id}", h.Update)
	r.Delete("/alarm-rules/{id}", h.Delete)
	r.Post("/alarm-rules/{id}/acknowledge", h.Acknowledge)
	r.Get("/alarm-states", h.States)
	r.Get("/alarm-history", h.History)
}
