// Package status owns the bridge's runtime counters: one explicit struct
// funnelling every update through named methods, with a Prometheus
// registration and snapshot accessor for the admin/status tooling.
// Counters are promauto declarations generalized from package-level vars
// to an owned struct per SPEC_FULL §9's "mutable shared counters →
// explicit owner" note.
package status

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

// Counters is the single owner of every bridge counter/gauge. All
// mutation goes through its methods; concurrent in-process readers (such
// as an admin console) take a Snapshot. The status CLI scrapes /metrics
// instead.
type Counters struct {
	framesReceived    prometheus.Counter
	framesResynced    prometheus.Counter
	framesOversized   prometheus.Counter
	recordsParsed     prometheus.Counter
	recordsCrcBad     prometheus.Counter
	recordsSuppressed prometheus.Counter
	httpSent          prometheus.Counter
	httpRetried       prometheus.Counter
	httpEnqueued      prometheus.Counter
	httpDrainedOK     prometheus.Counter
	httpDrainedFail   prometheus.Counter
	tcpReconnects     prometheus.Counter
	tcpConnected      prometheus.Gauge
	queueDepth        prometheus.Gauge
}

// New registers every counter/gauge with reg. A nil reg uses Prometheus's
// default global registry (the daemon's normal path); tests pass a fresh
// prometheus.NewRegistry() so repeated New() calls in one process don't
// collide on metric names.
func New(reg prometheus.Registerer) *Counters {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Counters{
		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_frames_received_total",
			Help: "Frames the framer completed, regardless of CRC validity.",
		}),
		framesResynced: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_frames_resynced_total",
			Help: "Times framing discarded bytes to resync onto the next SOH.",
		}),
		framesOversized: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_frames_oversized_total",
			Help: "Candidate frames dropped for exceeding the max frame size.",
		}),
		recordsParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_records_parsed_total",
			Help: "Records successfully parsed from a frame payload.",
		}),
		recordsCrcBad: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_records_crc_bad_total",
			Help: "Parsed records whose CRC did not match.",
		}),
		recordsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_records_suppressed_total",
			Help: "Status records dropped by suppressStatus before delivery.",
		}),
		httpSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_http_sent_total",
			Help: "Immediate POST attempts made.",
		}),
		httpRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_http_retried_total",
			Help: "Inline retry attempts made.",
		}),
		httpEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_http_enqueued_total",
			Help: "Records that fell through to the persistent queue.",
		}),
		httpDrainedOK: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_http_drained_ok_total",
			Help: "Queue entries delivered successfully by the drainer.",
		}),
		httpDrainedFail: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_http_drained_fail_total",
			Help: "Drain attempts that failed and aborted the tick.",
		}),
		tcpReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "p3_bridge_tcp_reconnects_total",
			Help: "TCP reconnect attempts initiated.",
		}),
		tcpConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "p3_bridge_tcp_connected",
			Help: "1 if the TCP client is currently connected, 0 otherwise.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "p3_bridge_queue_depth",
			Help: "Number of entries currently in the persistent retry queue.",
		}),
	}
}

func (c *Counters) IncFramesReceived()    { c.framesReceived.Inc() }
func (c *Counters) IncFramesResynced()    { c.framesResynced.Inc() }
func (c *Counters) IncFramesOversized()   { c.framesOversized.Inc() }
func (c *Counters) IncRecordsParsed()     { c.recordsParsed.Inc() }
func (c *Counters) IncRecordsCrcBad()     { c.recordsCrcBad.Inc() }
func (c *Counters) IncRecordsSuppressed() { c.recordsSuppressed.Inc() }
func (c *Counters) IncHTTPSent()          { c.httpSent.Inc() }
func (c *Counters) IncHTTPRetried()       { c.httpRetried.Inc() }
func (c *Counters) IncHTTPEnqueued()      { c.httpEnqueued.Inc() }
func (c *Counters) IncHTTPDrainedOK()     { c.httpDrainedOK.Inc() }
func (c *Counters) IncHTTPDrainedFail()   { c.httpDrainedFail.Inc() }
func (c *Counters) IncTCPReconnects()     { c.tcpReconnects.Inc() }

func (c *Counters) SetTCPConnected(connected bool) {
	if connected {
		c.tcpConnected.Set(1)
	} else {
		c.tcpConnected.Set(0)
	}
}

func (c *Counters) SetQueueDepth(n int) { c.queueDepth.Set(float64(n)) }

// Snapshot is a point-in-time read of every counter/gauge, for in-process
// callers (such as an admin console) that want current values without
// scraping /metrics over HTTP.
type Snapshot struct {
	FramesReceived    float64
	FramesResynced    float64
	FramesOversized   float64
	RecordsParsed     float64
	RecordsCrcBad     float64
	RecordsSuppressed float64
	HTTPSent          float64
	HTTPRetried       float64
	HTTPEnqueued      float64
	HTTPDrainedOK     float64
	HTTPDrainedFail   float64
	TCPReconnects     float64
	TCPConnected      bool
	QueueDepth        float64
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// Snapshot reads every counter/gauge's current value. Safe to call
// concurrently with the Inc*/Set* methods; it does not lock against them,
// it just reads whatever Prometheus's own atomics currently hold.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		FramesReceived:    readCounter(c.framesReceived),
		FramesResynced:    readCounter(c.framesResynced),
		FramesOversized:   readCounter(c.framesOversized),
		RecordsParsed:     readCounter(c.recordsParsed),
		RecordsCrcBad:     readCounter(c.recordsCrcBad),
		RecordsSuppressed: readCounter(c.recordsSuppressed),
		HTTPSent:          readCounter(c.httpSent),
		HTTPRetried:       readCounter(c.httpRetried),
		HTTPEnqueued:      readCounter(c.httpEnqueued),
		HTTPDrainedOK:     readCounter(c.httpDrainedOK),
		HTTPDrainedFail:   readCounter(c.httpDrainedFail),
		TCPReconnects:     readCounter(c.tcpReconnects),
		TCPConnected:      readGauge(c.tcpConnected) != 0,
		QueueDepth:        readGauge(c.queueDepth),
	}
}

// StartServer serves /metrics on addr (e.g. ":9090") in a background
// goroutine.
func StartServer(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorln("status: metrics server stopped:", err)
		}
	}()
}
