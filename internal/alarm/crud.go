package alarm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/joyautomation/mantle/internal/merr"
	"github.com/joyautomation/mantle/internal/topology"
)

// validateRule rejects malformed rules before any state is mutated.
func validateRule(r *Rule) error {
	if r.Identity.Group == "" || r.Identity.Node == "" || r.Identity.Metric == "" {
		return merr.Programmer("rule identity requires group, node and metric", nil)
	}
	if r.DelaySec < 0 {
		return merr.Programmer("rule delay must not be negative", nil)
	}
	switch r.Type {
	case RuleTrue, RuleFalse:
	case RuleAbove, RuleBelow:
		if r.Threshold == nil {
			return merr.Invariant("threshold is required for above/below rules", nil)
		}
	default:
		return merr.Programmer("unknown rule type "+string(r.Type), nil)
	}
	return nil
}

// CreateRule inserts a new alarm rule and seeds its state row.
func (e *Engine) CreateRule(ctx context.Context, r *Rule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	r.CreatedAt = now
	r.UpdatedAt = now

	err := e.pool.QueryRow(ctx, `
		INSERT INTO alarm_rules (grp, node, device, metric, name, rule_type, threshold, delay_sec, enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, r.Identity.Group, r.Identity.Node, r.Identity.Device, r.Identity.Metric, r.Name, r.Type,
		r.Threshold, r.DelaySec, r.Enabled, now, now).Scan(&r.ID)
	if err != nil {
		return merr.Transient("create alarm rule", err)
	}

	if _, err := e.pool.Exec(ctx, `
		INSERT INTO alarm_state (rule_id, state, updated_at) VALUES ($1,$2,$3)
	`, r.ID, StateNormal, now); err != nil {
		return merr.Transient("create alarm state", err)
	}

	e.mu.Lock()
	e.byID[r.ID] = r
	e.rules[r.Identity.Key()] = append(e.rules[r.Identity.Key()], r)
	e.states[r.ID] = &RuleState{RuleID: r.ID, State: StateNormal, UpdatedAt: now}
	e.mu.Unlock()

	return nil
}

// UpdateRule updates an existing rule's fields in place.
func (e *Engine) UpdateRule(ctx context.Context, r *Rule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UnixMilli()
	_, err := e.pool.Exec(ctx, `
		UPDATE alarm_rules SET name=$1, rule_type=$2, threshold=$3, delay_sec=$4, enabled=$5, updated_at=$6
		WHERE id=$7
	`, r.Name, r.Type, r.Threshold, r.DelaySec, r.Enabled, r.UpdatedAt, r.ID)
	if err != nil {
		return merr.Transient("update alarm rule", err)
	}

	e.mu.Lock()
	if existing, ok := e.byID[r.ID]; ok {
		*existing = *r
	}
	e.mu.Unlock()

	if !r.Enabled {
		return e.disableRule(ctx, r.ID)
	}
	return nil
}

// DeleteRule removes a rule; alarm_state and alarm_history rows cascade
// via the foreign key.
func (e *Engine) DeleteRule(ctx context.Context, ruleID int64) error {
	e.mu.Lock()
	rule, ok := e.byID[ruleID]
	if ok {
		e.cancelTimerLocked(ruleID)
		delete(e.byID, ruleID)
		delete(e.states, ruleID)
		key := rule.Identity.Key()
		filtered := e.rules[key][:0]
		for _, r := range e.rules[key] {
			if r.ID != ruleID {
				filtered = append(filtered, r)
			}
		}
		e.rules[key] = filtered
	}
	e.mu.Unlock()

	if _, err := e.pool.Exec(ctx, `DELETE FROM alarm_rules WHERE id=$1`, ruleID); err != nil {
		return merr.Transient("delete alarm rule", err)
	}
	return nil
}

// disableRule cancels any pending timer and forces state to normal with
// both timestamps cleared.
func (e *Engine) disableRule(ctx context.Context, ruleID int64) error {
	e.mu.Lock()
	e.cancelTimerLocked(ruleID)
	state, ok := e.states[ruleID]
	if ok {
		e.resetToNormalLocked(state)
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}
	_, err := e.pool.Exec(ctx, `
		UPDATE alarm_state SET state=$1, condition_met_at=NULL, activated_at=NULL, updated_at=$2 WHERE rule_id=$3
	`, StateNormal, state.UpdatedAt, ruleID)
	if err != nil {
		return merr.Transient("disable alarm rule", err)
	}
	return nil
}

func (e *Engine) cancelTimerLocked(ruleID int64) {
	if t, ok := e.timers[ruleID]; ok {
		t.Stop()
		delete(e.timers, ruleID)
	}
}

// Rules returns a snapshot of every cached rule, ordered by id.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	out := make([]Rule, 0, len(e.byID))
	for _, r := range e.byID {
		out = append(out, *r)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// States returns a snapshot of every rule's current state, ordered by
// rule id.
func (e *Engine) States() []RuleState {
	e.mu.Lock()
	out := make([]RuleState, 0, len(e.states))
	for _, s := range e.states {
		out = append(out, *s)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// HistoryQuery narrows QueryHistory. All fields are optional: a zero
// RuleID means every rule, zero Start/End mean an unbounded window.
type HistoryQuery struct {
	RuleID int64
	Start  int64
	End    int64
	Limit  int
}

// QueryHistory returns alarm_history rows matching q, most recent first.
func (e *Engine) QueryHistory(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	if q.Limit <= 0 {
		q.Limit = 500
	}
	sql := `SELECT id, rule_id, from_state, to_state, value, ts FROM alarm_history WHERE 1=1`
	args := []any{}
	n := 1
	if q.RuleID != 0 {
		sql += fmt.Sprintf(" AND rule_id=$%d", n)
		args = append(args, q.RuleID)
		n++
	}
	if q.Start != 0 {
		sql += fmt.Sprintf(" AND ts >= $%d", n)
		args = append(args, q.Start)
		n++
	}
	if q.End != 0 {
		sql += fmt.Sprintf(" AND ts <= $%d", n)
		args = append(args, q.End)
		n++
	}
	sql += fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", n)
	args = append(args, q.Limit)

	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, merr.Transient("query alarm history", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.RuleID, &h.FromState, &h.ToState, &h.Value, &h.TS); err != nil {
			return nil, merr.Decode("scan alarm history", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// RulesFor returns a snapshot of the rules attached to identity.
func (e *Engine) RulesFor(id topology.Identity) []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Rule(nil), e.rules[id.Key()]...)
}

// ActiveCount reports how many rules are currently in state=active,
// used by the metrics collector as a gauge.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.states {
		if s.State == StateActive {
			n++
		}
	}
	return n
}

// StateFor returns the current state of a rule.
func (e *Engine) StateFor(ruleID int64) (RuleState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[ruleID]
	if !ok {
		return RuleState{}, false
	}
	return *s, true
}

// History returns the alarm_history rows for a rule, most recent first.
func (e *Engine) History(ctx context.Context, ruleID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := e.pool.Query(ctx, `
		SELECT id, rule_id, from_state, to_state, value, ts FROM alarm_history
		WHERE rule_id=$1 ORDER BY ts DESC LIMIT $2
	`, ruleID, limit)
	if err != nil {
		return nil, merr.Transient("query alarm history", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.RuleID, &h.FromState, &h.ToState, &h.Value, &h.TS); err != nil {
			return nil, merr.Decode("scan alarm history", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// HistoryEntry is one alarm_history row.
type HistoryEntry struct {
	ID        int64
	RuleID    int64
	FromState State
	ToState   State
	Value     *float64
	TS        int64
}
