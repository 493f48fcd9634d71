package status

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	assert.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCountersIncrementIndependently(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.IncFramesReceived()
	c.IncFramesReceived()
	c.IncRecordsCrcBad()

	assert.Equal(t, float64(2), counterValue(t, c.framesReceived))
	assert.Equal(t, float64(1), counterValue(t, c.recordsCrcBad))
	assert.Equal(t, float64(0), counterValue(t, c.httpSent))
}

func TestGaugesReflectLastSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SetQueueDepth(3)
	c.SetTCPConnected(true)

	var m dto.Metric
	assert.NoError(t, c.queueDepth.Write(&m))
	assert.Equal(t, float64(3), m.GetGauge().GetValue())

	m = dto.Metric{}
	assert.NoError(t, c.tcpConnected.Write(&m))
	assert.Equal(t, float64(1), m.GetGauge().GetValue())

	c.SetTCPConnected(false)
	m = dto.Metric{}
	assert.NoError(t, c.tcpConnected.Write(&m))
	assert.Equal(t, float64(0), m.GetGauge().GetValue())
}

func TestSnapshotReflectsCurrentValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.IncFramesReceived()
	c.IncFramesReceived()
	c.IncHTTPEnqueued()
	c.SetQueueDepth(2)
	c.SetTCPConnected(true)

	snap := c.Snapshot()
	assert.Equal(t, float64(2), snap.FramesReceived)
	assert.Equal(t, float64(1), snap.HTTPEnqueued)
	assert.Equal(t, float64(0), snap.HTTPDrainedFail)
	assert.Equal(t, float64(2), snap.QueueDepth)
	assert.True(t, snap.TCPConnected)
}
