package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort(t *testing.T) {
	require.NoError(t, Port("1883"))
	require.NoError(t, Port("65535"))
	require.Error(t, Port("0"))
	require.Error(t, Port("70000"))
	require.Error(t, Port("not-a-port"))
}

func TestBrokerURL(t *testing.T) {
	require.NoError(t, BrokerURL("tcp://localhost:1883"))
	require.NoError(t, BrokerURL("ssl://broker.example.com:8883"))
	require.Error(t, BrokerURL(""))
	require.Error(t, BrokerURL("localhost:1883"))
	require.Error(t, BrokerURL("ftp://localhost:21"))
}

func TestNormalizeTimestampMs(t *testing.T) {
	// seconds -> ms
	assert.Equal(t, int64(1_700_000_000_000), NormalizeTimestampMs(1_700_000_000))
	// already ms, unchanged
	assert.Equal(t, int64(1_700_000_000_000), NormalizeTimestampMs(1_700_000_000_000))
	// big-integer scale timestamp (>= 2^53), no crash, passed through
	big := int64(1) << 55
	assert.Equal(t, big, NormalizeTimestampMs(big))
}

func TestAutoInterval(t *testing.T) {
	// samples=0 must not produce a zero-second interval
	assert.Equal(t, int64(1), AutoInterval(5000, 0))
	assert.Equal(t, int64(1), AutoInterval(5000, -10))
	// a 100s window over 100 samples -> 1s buckets
	assert.Equal(t, int64(1), AutoInterval(100_000, 100))
	// a 10000s window over 100 samples -> 100s buckets
	assert.Equal(t, int64(100), AutoInterval(10_000_000, 100))
}
