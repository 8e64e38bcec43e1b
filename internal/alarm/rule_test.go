package alarm

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/joyautomation/mantle/internal/topology"
)

func threshold(f float64) *float64 { return &f }

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		val  topology.Value
		want bool
	}{
		{"true_nonzero", Rule{Type: RuleTrue}, topology.Int(1), true},
		{"true_zero", Rule{Type: RuleTrue}, topology.Int(0), false},
		{"false_zero", Rule{Type: RuleFalse}, topology.Int(0), true},
		{"false_nonzero", Rule{Type: RuleFalse}, topology.Int(1), false},
		{"above_exceeds", Rule{Type: RuleAbove, Threshold: threshold(10)}, topology.Float(11), true},
		{"above_below", Rule{Type: RuleAbove, Threshold: threshold(10)}, topology.Float(9), false},
		{"above_nil_threshold", Rule{Type: RuleAbove}, topology.Float(100), false},
		{"below_under", Rule{Type: RuleBelow, Threshold: threshold(10)}, topology.Float(5), true},
		{"below_over", Rule{Type: RuleBelow, Threshold: threshold(10)}, topology.Float(15), false},
		{"unparseable_string", Rule{Type: RuleTrue}, topology.String("not a number"), false},
		{"bool_true", Rule{Type: RuleTrue}, topology.Bool(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule.evaluateCondition(tt.val)
			if got != tt.want {
				t.Errorf("evaluateCondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionKind(t *testing.T) {
	if transitionKind(StateActive) != "active" {
		t.Error("active state should map to transition kind 'active'")
	}
	if transitionKind(StateNormal) != "normal" {
		t.Error("normal state should map to transition kind 'normal'")
	}
}

func TestValidateRule(t *testing.T) {
	id := topology.Identity{Group: "G1", Node: "N1", Metric: "Temp"}
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid_true", Rule{Identity: id, Type: RuleTrue}, false},
		{"valid_above", Rule{Identity: id, Type: RuleAbove, Threshold: threshold(10)}, false},
		{"above_missing_threshold", Rule{Identity: id, Type: RuleAbove}, true},
		{"below_missing_threshold", Rule{Identity: id, Type: RuleBelow}, true},
		{"negative_delay", Rule{Identity: id, Type: RuleTrue, DelaySec: -1}, true},
		{"missing_metric", Rule{Identity: topology.Identity{Group: "G1", Node: "N1"}, Type: RuleTrue}, true},
		{"unknown_type", Rule{Identity: id, Type: "between"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRule(&tt.rule)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRule() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewWebhookNilWhenURLEmpty(t *testing.T) {
	if w := NewWebhook("", "", "", 0, zerolog.Nop()); w != nil {
		t.Error("NewWebhook with empty url should return nil")
	}
}
