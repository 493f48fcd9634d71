// Command p3-bridge connects to a MYLAPS P3 decoder over TCP (or listens
// for it over UDP), frames and parses its byte stream into Records, and
// delivers each one to an HTTP receiver with retry and durable-queue
// fallback: flag-based config path, logrus TextFormatter setup, version
// vars set from -ldflags, and a single dispatch on the transport mode.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	bridge "github.com/sdale511/p3-bridge"
	"github.com/sdale511/p3-bridge/internal/delivery"
	"github.com/sdale511/p3-bridge/internal/framer"
	"github.com/sdale511/p3-bridge/internal/p3"
	"github.com/sdale511/p3-bridge/internal/retry"
	"github.com/sdale511/p3-bridge/internal/status"
	"github.com/sdale511/p3-bridge/internal/transport"
)

var (
	version string
	commit  string
	date    string
	builtBy string
)

func main() {
	configPath := flag.String("c", "", "configuration file to use")
	flag.StringVar(configPath, "config", "", "configuration file to use")
	debug := flag.Bool("debug", false, "enable debug logging")
	recordLog := flag.String("record-log", "", "optional path to append every delivered record as JSON lines")
	pprofPort := flag.Int("pprof-port", 0, "optional port to serve net/http/pprof on; 0 disables it")
	flag.Parse()

	bridge.Version = version
	bridge.Commit = commit
	bridge.Date = date
	bridge.BuiltBy = builtBy

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableLevelTruncation: true, FullTimestamp: true})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	bridge.SetLogger(logger)

	cfg, err := bridge.ReadConfigWithPath(*configPath)
	if err != nil {
		logger.Fatalln("reading configuration:", err)
	}
	logger.Infoln("p3-bridge", version, commit, date, builtBy, "starting")

	if *pprofPort != 0 {
		bridge.StartProfile(*pprofPort)
	}

	counters := status.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enable {
		status.StartServer(cfg.Metrics.Addr)
		logger.Infoln("metrics listening on", cfg.Metrics.Addr)
	}

	queue, err := delivery.LoadQueue(cfg.Post.QueuePath)
	if err != nil {
		logger.Fatalln("loading persistent delivery queue:", err)
	}
	counters.SetQueueDepth(queue.Len())

	pipelineCfg := delivery.Config{
		Enabled:                cfg.Post.Enabled,
		BaseURL:                cfg.Post.BaseURL,
		Path:                   cfg.Post.Path,
		Method:                 cfg.Post.Method,
		Timeout:                bridge.Millis(cfg.Post.TimeoutMs),
		Retries:                cfg.Post.Retries,
		RetryDelay:             bridge.Millis(cfg.Post.RetryDelayMs),
		RetryBackoffMultiplier: cfg.Post.RetryBackoffMultiplier,
		QueueDrainMaxPerTick:   cfg.Post.QueueDrainMaxPerTick,
		Headers:                cfg.Post.Headers,
		QueuePath:              cfg.Post.QueuePath,
		DrainInterval:          bridge.Millis(cfg.Post.DrainIntervalMs),
	}
	pipeline := delivery.NewPipeline(pipelineCfg, queue, counters, logger)
	pipeline.Start()
	defer pipeline.Stop()

	var recordWriter *bridge.RecordLogWriter
	if *recordLog != "" {
		recordWriter, err = bridge.NewRecordLogWriter(*recordLog)
		if err != nil {
			logger.Fatalln("opening record log:", err)
		}
		defer recordWriter.Close()
	}

	frm := framer.New(framer.DefaultMaxFrame, func(d framer.Diagnostic) {
		switch d.Kind {
		case framer.DiagResync:
			counters.IncFramesResynced()
		case framer.DiagOversize:
			counters.IncFramesOversized()
		}
		logger.Debugln("framing:", d.Kind, d.Detail)
	})

	onFrame := func(data []byte) {
		for _, payload := range frm.Push(data) {
			handleFrame(payload, pipeline, counters, logger, recordWriter, cfg.Logging.SuppressStatus)
		}
	}

	switch cfg.Defaults.Mode {
	case "udp":
		runUDP(cfg, onFrame, counters, logger)
	default:
		runTCP(cfg, onFrame, counters, logger)
	}
}

func handleFrame(payload []byte, pipeline *delivery.Pipeline, counters *status.Counters, logger logrus.FieldLogger, recordWriter *bridge.RecordLogWriter, suppressStatus bool) {
	counters.IncFramesReceived()
	rec, perr := p3.ParsePayload(payload, time.Now())
	if perr != nil {
		logger.Warnln("discarding frame:", perr)
		return
	}
	if !rec.CRC.Ok {
		counters.IncRecordsCrcBad()
		logger.Warnln("record failed CRC check, delivering anyway:", rec.TORName)
	}
	counters.IncRecordsParsed()

	if suppressStatus && rec.TOR == p3.TORStatus {
		counters.IncRecordsSuppressed()
		return
	}

	if recordWriter != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := recordWriter.Write(data); err != nil {
				logger.Warnln("record log write failed:", err)
			}
		}
	}

	if err := pipeline.Deliver(context.Background(), rec); err != nil {
		logger.Warnln("delivery failed, queued for retry:", err)
	}
}

func runTCP(cfg *bridge.Config, onBytes func([]byte), counters *status.Counters, logger logrus.FieldLogger) {
	target := transport.Target{Host: cfg.Defaults.TCPHost, Port: cfg.Defaults.TCPPort}
	backoffCfg := retry.Config{
		Base:   bridge.Millis(cfg.Reconnect.BaseDelayMs),
		Factor: cfg.Reconnect.BackoffFactor,
		Max:    bridge.Millis(cfg.Reconnect.MaxDelayMs),
		Jitter: cfg.Reconnect.JitterRatio,
	}
	client := transport.NewTCPClient(target, onBytes,
		transport.WithConnectTimeout(bridge.Millis(cfg.Reconnect.ConnectTimeoutMs)),
		transport.WithBackoff(backoffCfg),
		transport.WithDiagnostics(func(d transport.Diagnostic) {
			logger.Debugln("transport:", d.Kind, d.Detail)
		}),
		transport.WithStateCallback(func(s transport.State) {
			counters.SetTCPConnected(s == transport.StateConnected)
			if s == transport.StateConnecting {
				counters.IncTCPReconnects()
			}
			logger.Infoln("decoder connection state:", s)
		}),
	)
	client.Start()
	logger.Infoln("connecting to decoder at", target.Host, target.Port)

	select {}
}

func runUDP(cfg *bridge.Config, onBytes func([]byte), counters *status.Counters, logger logrus.FieldLogger) {
	listener := transport.NewUDPListener("0.0.0.0", cfg.Defaults.UDPListenPort, onBytes, func(d transport.Diagnostic) {
		logger.Debugln("transport:", d.Kind, d.Detail)
	})
	if err := listener.Start(); err != nil {
		logger.Fatalln("binding UDP listener:", err)
	}
	counters.SetTCPConnected(false)
	logger.Infoln("listening for decoder datagrams on UDP port", cfg.Defaults.UDPListenPort)

	select {}
}
