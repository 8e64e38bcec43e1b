package sparkplug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	top, err := ParseTopic("spBv1.0/G1/NDATA/N1")
	require.NoError(t, err)
	assert.Equal(t, "G1", top.Group)
	assert.Equal(t, ClassNData, top.Class)
	assert.Equal(t, "N1", top.Node)
	assert.Equal(t, "", top.Device)

	top, err = ParseTopic("spBv1.0/G1/DDATA/N1/D1")
	require.NoError(t, err)
	assert.Equal(t, "D1", top.Device)

	top, err = ParseTopic("$share/workers/spBv1.0/G1/NDATA/N1")
	require.NoError(t, err)
	assert.Equal(t, "G1", top.Group)

	_, err = ParseTopic("not/a/sparkplug/topic")
	assert.Error(t, err)
}

func TestCommandTopic(t *testing.T) {
	assert.Equal(t, "spBv1.0/G1/NCMD/N1", CommandTopic("G1", "N1", ""))
	assert.Equal(t, "spBv1.0/G1/DCMD/N1/D1", CommandTopic("G1", "N1", "D1"))
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	raw := EncodeCommand("Temp/SetPoint", float64(72.5), 3, 1_700_000_000_000)
	p, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, p.Metrics, 1)
	assert.Equal(t, "Temp/SetPoint", p.Metrics[0].Name)
	assert.Equal(t, "Double", p.Metrics[0].DataType)
	assert.Equal(t, float64(72.5), p.Metrics[0].Value)
	assert.EqualValues(t, 3, p.Seq)
	assert.True(t, p.HasSeq)
}

func TestDecodeBooleanMetric(t *testing.T) {
	raw := EncodeCommand("Running", true, 1, 1000)
	p, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, p.Metrics, 1)
	assert.Equal(t, "Boolean", p.Metrics[0].DataType)
	assert.Equal(t, true, p.Metrics[0].Value)
}

func TestDecodeStringMetric(t *testing.T) {
	raw := EncodeCommand("Mode", "auto", 1, 1000)
	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "auto", p.Metrics[0].Value)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
