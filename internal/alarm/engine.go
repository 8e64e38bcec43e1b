package alarm

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/joyautomation/mantle/internal/eventbus"
	"github.com/joyautomation/mantle/internal/merr"
	"github.com/joyautomation/mantle/internal/metrics"
	"github.com/joyautomation/mantle/internal/topology"
)

// Engine holds the rule cache and pending-state timers. One Engine per
// process, so that timer and event ownership is unambiguous.
type Engine struct {
	pool *pgxpool.Pool
	bus  *eventbus.Bus
	hook *Webhook
	log  zerolog.Logger

	mu     sync.Mutex
	rules  map[string][]*Rule // identity key -> rules
	byID   map[int64]*Rule
	states map[int64]*RuleState
	timers map[int64]*time.Timer
}

// New constructs an Engine. Call LoadRules then RestoreTimers during
// startup before processing any samples.
func New(pool *pgxpool.Pool, bus *eventbus.Bus, hook *Webhook, log zerolog.Logger) *Engine {
	return &Engine{
		pool:   pool,
		bus:    bus,
		hook:   hook,
		log:    log,
		rules:  make(map[string][]*Rule),
		byID:   make(map[int64]*Rule),
		states: make(map[int64]*RuleState),
		timers: make(map[int64]*time.Timer),
	}
}

// LoadRules rebuilds the rule cache from the alarm_rules table.
func (e *Engine) LoadRules(ctx context.Context) error {
	rows, err := e.pool.Query(ctx, `
		SELECT id, grp, node, device, metric, name, rule_type, threshold, delay_sec, enabled, created_at, updated_at
		FROM alarm_rules
	`)
	if err != nil {
		return merr.Transient("load alarm rules", err)
	}
	defer rows.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[string][]*Rule)
	e.byID = make(map[int64]*Rule)

	for rows.Next() {
		r := &Rule{}
		if err := rows.Scan(&r.ID, &r.Identity.Group, &r.Identity.Node, &r.Identity.Device, &r.Identity.Metric,
			&r.Name, &r.Type, &r.Threshold, &r.DelaySec, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return merr.Decode("scan alarm rule", err)
		}
		e.byID[r.ID] = r
		key := r.Identity.Key()
		e.rules[key] = append(e.rules[key], r)
	}

	states, err := e.loadStates(ctx)
	if err != nil {
		return err
	}
	e.states = states

	return rows.Err()
}

func (e *Engine) loadStates(ctx context.Context) (map[int64]*RuleState, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT rule_id, state, condition_met_at, activated_at, last_notified_at, last_value, updated_at
		FROM alarm_state
	`)
	if err != nil {
		return nil, merr.Transient("load alarm state", err)
	}
	defer rows.Close()

	states := make(map[int64]*RuleState)
	for rows.Next() {
		s := &RuleState{}
		if err := rows.Scan(&s.RuleID, &s.State, &s.ConditionMetAt, &s.ActivatedAt, &s.LastNotifiedAt, &s.LastValue, &s.UpdatedAt); err != nil {
			return nil, merr.Decode("scan alarm state", err)
		}
		states[s.RuleID] = s
	}
	return states, rows.Err()
}

// RestoreTimers makes pending delays survive a restart: for every rule in
// state=pending, compute the remaining delay and either transition
// immediately to active (remaining <= 0) or schedule a timer. Rules that
// were disabled while pending are reset to normal.
func (e *Engine) RestoreTimers(ctx context.Context) error {
	e.mu.Lock()
	type restoreEntry struct {
		rule  *Rule
		state *RuleState
	}
	var toSchedule []restoreEntry
	now := time.Now().UnixMilli()

	for id, s := range e.states {
		if s.State != StatePending {
			continue
		}
		rule, ok := e.byID[id]
		if !ok {
			continue
		}
		if !rule.Enabled {
			e.resetToNormalLocked(s)
			continue
		}
		toSchedule = append(toSchedule, restoreEntry{rule: rule, state: s})
	}
	e.mu.Unlock()

	for _, entry := range toSchedule {
		conditionMetAt := int64(0)
		if entry.state.ConditionMetAt != nil {
			conditionMetAt = *entry.state.ConditionMetAt
		}
		remaining := int64(entry.rule.DelaySec)*1000 - (now - conditionMetAt)
		if remaining <= 0 {
			lastValue := 0.0
			if entry.state.LastValue != nil {
				lastValue = *entry.state.LastValue
			}
			if err := e.transition(ctx, entry.rule, entry.state, StateActive, lastValue); err != nil {
				e.log.Warn().Err(err).Int64("rule_id", entry.rule.ID).Msg("restore timer: immediate transition to active failed")
			}
			continue
		}
		e.scheduleTimer(entry.rule, entry.state, time.Duration(remaining)*time.Millisecond)
	}

	if len(toSchedule) > 0 {
		e.log.Info().Int("count", len(toSchedule)).Msg("alarm engine: restored pending timers")
	}
	return nil
}

func (e *Engine) resetToNormalLocked(s *RuleState) {
	s.State = StateNormal
	s.ConditionMetAt = nil
	s.ActivatedAt = nil
	s.UpdatedAt = time.Now().UnixMilli()
}

// Evaluate runs every rule attached to identity against value. Called
// fire-and-forget from the ingress path; errors are logged, never
// returned to the caller.
func (e *Engine) Evaluate(ctx context.Context, id topology.Identity, value topology.Value) {
	e.mu.Lock()
	rules := append([]*Rule(nil), e.rules[id.Key()]...)
	e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if err := e.evaluateRule(ctx, rule, value); err != nil {
			e.log.Warn().Err(err).Int64("rule_id", rule.ID).Msg("alarm evaluation failed")
		}
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule *Rule, value topology.Value) error {
	e.mu.Lock()
	state, ok := e.states[rule.ID]
	if !ok {
		state = &RuleState{RuleID: rule.ID, State: StateNormal}
		e.states[rule.ID] = state
	}
	e.mu.Unlock()

	met := rule.evaluateCondition(value)
	numeric, _ := value.Numeric()

	switch state.State {
	case StateNormal:
		if !met {
			return nil
		}
		if rule.DelaySec <= 0 {
			return e.transition(ctx, rule, state, StateActive, numeric)
		}
		return e.transition(ctx, rule, state, StatePending, numeric)

	case StatePending:
		if !met {
			return e.transition(ctx, rule, state, StateNormal, numeric)
		}
		// Condition still met: update last_value only, the timer is never
		// reset while pending.
		return e.updateLastValue(ctx, state, numeric)

	case StateActive:
		if !met {
			return e.transition(ctx, rule, state, StateNormal, numeric)
		}
		return e.updateLastValue(ctx, state, numeric)

	case StateAcknowledged:
		if !met {
			return e.transition(ctx, rule, state, StateNormal, numeric)
		}
		return e.updateLastValue(ctx, state, numeric)
	}
	return nil
}

func (e *Engine) updateLastValue(ctx context.Context, state *RuleState, value float64) error {
	e.mu.Lock()
	state.LastValue = &value
	state.UpdatedAt = time.Now().UnixMilli()
	e.mu.Unlock()

	_, err := e.pool.Exec(ctx, `UPDATE alarm_state SET last_value=$1, updated_at=$2 WHERE rule_id=$3`,
		value, state.UpdatedAt, state.RuleID)
	if err != nil {
		return merr.Transient("update alarm last_value", err)
	}
	return nil
}

// transition performs the durable four-step state change: update
// alarm_state, append alarm_history, publish an alarmStateChange event,
// and fire the webhook when appropriate.
func (e *Engine) transition(ctx context.Context, rule *Rule, state *RuleState, to State, value float64) error {
	e.mu.Lock()
	from := state.State
	now := time.Now().UnixMilli()

	if existing, ok := e.timers[rule.ID]; ok {
		existing.Stop()
		delete(e.timers, rule.ID)
	}

	state.State = to
	state.LastValue = &value
	state.UpdatedAt = now
	switch to {
	case StatePending:
		state.ConditionMetAt = &now
		state.ActivatedAt = nil
	case StateActive:
		if state.ActivatedAt == nil {
			state.ActivatedAt = &now
		}
	case StateNormal:
		state.ConditionMetAt = nil
		state.ActivatedAt = nil
	}
	e.mu.Unlock()

	if _, err := e.pool.Exec(ctx, `
		UPDATE alarm_state SET state=$1, condition_met_at=$2, activated_at=$3, last_value=$4, updated_at=$5
		WHERE rule_id=$6
	`, state.State, state.ConditionMetAt, state.ActivatedAt, state.LastValue, state.UpdatedAt, rule.ID); err != nil {
		return merr.Transient("update alarm state", err)
	}

	if _, err := e.pool.Exec(ctx, `
		INSERT INTO alarm_history (rule_id, from_state, to_state, value, ts) VALUES ($1,$2,$3,$4,$5)
	`, rule.ID, from, to, value, now); err != nil {
		return merr.Transient("append alarm history", err)
	}

	e.bus.Publish(eventbus.TopicAlarmStateChange, rule.Identity.Key(), map[string]any{
		"ruleId": rule.ID, "from": from, "to": to, "value": value, "ts": now,
	})
	metrics.AlarmTransitionsTotal.WithLabelValues(string(to)).Inc()

	if to == StatePending {
		e.scheduleTimer(rule, state, time.Duration(rule.DelaySec)*time.Second)
	}

	if to == StateActive || (from != StateNormal && to == StateNormal) {
		if e.hook != nil {
			go e.hook.Dispatch(context.Background(), rule, transitionKind(to), value)
		}
	}

	return nil
}

func transitionKind(to State) string {
	if to == StateActive {
		return "active"
	}
	return "normal"
}

func (e *Engine) scheduleTimer(rule *Rule, state *RuleState, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.timers[rule.ID]; ok {
		existing.Stop()
	}
	e.timers[rule.ID] = time.AfterFunc(delay, func() {
		ctx := context.Background()
		if err := e.transition(ctx, rule, state, StateActive, valueOrZero(state.LastValue)); err != nil {
			e.log.Warn().Err(err).Int64("rule_id", rule.ID).Msg("pending timer: transition to active failed")
		}
	})
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Acknowledge transitions a rule from active to acknowledged.
// Acknowledgement is only permitted in active; any other current state
// is a no-op error. The change goes through transition so the
// alarm_history row and alarmStateChange event are emitted like every
// other state change (acknowledged is outside the webhook trigger set).
func (e *Engine) Acknowledge(ctx context.Context, ruleID int64) error {
	e.mu.Lock()
	state, ok := e.states[ruleID]
	if !ok {
		e.mu.Unlock()
		return merr.Invariant("acknowledge: unknown rule", nil)
	}
	if state.State != StateActive {
		e.mu.Unlock()
		return merr.Invariant("acknowledge: rule is not active", nil)
	}
	rule, ok := e.byID[ruleID]
	if !ok {
		e.mu.Unlock()
		return merr.Invariant("acknowledge: unknown rule", nil)
	}
	lastValue := valueOrZero(state.LastValue)
	e.mu.Unlock()

	return e.transition(ctx, rule, state, StateAcknowledged, lastValue)
}
