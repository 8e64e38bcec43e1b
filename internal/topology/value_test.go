package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyType(t *testing.T) {
	assert.Equal(t, KindInt, ClassifyType("Int32"))
	assert.Equal(t, KindInt, ClassifyType("UInt64"))
	assert.Equal(t, KindFloat, ClassifyType("Float"))
	assert.Equal(t, KindFloat, ClassifyType("Double"))
	assert.Equal(t, KindBool, ClassifyType("Boolean"))
	assert.Equal(t, KindString, ClassifyType("String"))
	assert.Equal(t, KindString, ClassifyType("DataSet"))
}

func TestFromSparkplugBigIntPromotion(t *testing.T) {
	// a uint64 beyond int64 range must promote to float, never panic or
	// leak a wrapped big-integer type downstream.
	huge := uint64(1) << 63
	v := FromSparkplug("UInt64", huge)
	assert.Equal(t, KindFloat, v.Kind)
}

func TestNumericConditionEvaluation(t *testing.T) {
	f, ok := Bool(true).Numeric()
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)

	f, ok = Bool(false).Numeric()
	assert.True(t, ok)
	assert.Equal(t, 0.0, f)

	f, ok = String("42.5").Numeric()
	assert.True(t, ok)
	assert.Equal(t, 42.5, f)

	_, ok = String("not-a-number").Numeric()
	assert.False(t, ok)

	_, ok = Null().Numeric()
	assert.False(t, ok)
}

func TestDisplayAlwaysStringifies(t *testing.T) {
	assert.Equal(t, "72.5", Float(72.5).Display())
	assert.Equal(t, "true", Bool(true).Display())
	assert.Equal(t, "42", Int(42).Display())
	assert.Equal(t, "hi", String("hi").Display())
}
