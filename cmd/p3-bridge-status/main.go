// Command p3-bridge-status polls a running p3-bridge's metrics endpoint
// twice, one period apart, and reports whether it is receiving frames and
// keeping its delivery queue drained: go-flags option parsing, pterm
// spinners, and a before/after Prometheus text-format scrape — minus any
// token/JWT check, since the decoder-facing side of this bridge has no
// authentication to verify.
package main

import (
	"io"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"

	bridge "github.com/sdale511/p3-bridge"
)

var (
	version string
	commit  string
	date    string
	builtBy string
)

type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose debug information"`
	Version bool   `short:"V" long:"version" description:"Print version information"`
	Config  string `short:"c" long:"config" description:"Configuration file to use" default:"/etc/p3-bridge/config.yaml"`
	Period  int    `short:"p" long:"period" description:"Period in seconds between the two status checks" default:"10"`
}

type bridgeStats struct {
	framesReceived  int64
	recordsParsed   int64
	httpEnqueued    int64
	httpDrainedFail int64
	queueDepth      int64
	tcpConnected    int64
}

var options Options
var parser = flags.NewParser(&options, flags.Default)

func main() {
	bridge.Version = version
	bridge.Commit = commit
	bridge.Date = date
	bridge.BuiltBy = builtBy

	logger := logrus.New()
	bridge.SetLogger(logger)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		logger.Errorln(err)
		os.Exit(1)
	}
	if options.Version {
		pterm.Println(version, commit, date, builtBy)
		os.Exit(0)
	}
	if len(options.Verbose) > 0 {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	spinnerConfig, _ := pterm.DefaultSpinner.Start("Checking the p3-bridge configuration")
	cfg, err := bridge.ReadConfigWithPath(options.Config)
	if err != nil {
		spinnerConfig.Fail("Unable to read configuration: ", err)
		os.Exit(1)
	}
	spinnerConfig.Success()

	if !cfg.Metrics.Enable {
		pterm.Error.Println("Metrics are disabled in the configuration file")
		logger.Errorln("metrics disabled, unable to determine if the bridge is running")
		os.Exit(1)
	}

	initial, err := checkMetricsEndpoint(cfg.Metrics.Addr)
	if err != nil {
		logger.Errorln("unable to connect to the bridge metrics endpoint:", err)
		os.Exit(1)
	}

	if initial.framesReceived == 0 {
		pterm.Warning.Println("The bridge has not received any frames since it was started")
	}
	if initial.queueDepth > 100 {
		pterm.Error.Println("The bridge has", strconv.FormatInt(initial.queueDepth, 10), "entries queued for retry, it may not be keeping up with the delivery endpoint")
	}
	if initial.tcpConnected == 0 {
		pterm.Warning.Println("The bridge is not currently connected to its decoder")
	}

	spinnerPeriod, _ := pterm.DefaultSpinner.Start("Checking again after " + strconv.Itoa(options.Period) + " seconds")
	time.Sleep(time.Duration(options.Period) * time.Second)
	spinnerPeriod.Success()

	second, err := checkMetricsEndpoint(cfg.Metrics.Addr)
	if err != nil {
		spinnerPeriod.Fail("Unable to connect to the bridge metrics endpoint: ", err)
		os.Exit(1)
	}

	if second.queueDepth > 100 {
		pterm.Error.Println("The bridge still has", strconv.FormatInt(second.queueDepth, 10), "entries queued, it is not keeping up")
	} else {
		pterm.Success.Println("The delivery queue is below the warning threshold")
	}

	if second.httpDrainedFail > initial.httpDrainedFail {
		pterm.Warning.Println("The bridge failed", strconv.FormatInt(second.httpDrainedFail-initial.httpDrainedFail, 10), "drain attempts since the last check")
	}

	if second.framesReceived == initial.framesReceived {
		pterm.Error.Println("The bridge has not received any frames since the last check")
	} else {
		pterm.Success.Println("The bridge has received", strconv.FormatInt(second.framesReceived-initial.framesReceived, 10), "frames since the last check")
	}
}

func checkMetricsEndpoint(addr string) (bridgeStats, error) {
	host := addr
	if strings.HasPrefix(addr, ":") {
		host = "localhost" + addr
	}
	url := "http://" + host + "/metrics"
	spinner, _ := pterm.DefaultSpinner.Start("Checking the bridge metrics endpoint: " + url)
	resp, err := http.Get(url)
	if err != nil {
		spinner.Fail()
		return bridgeStats{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		spinner.Fail("unable to read the metrics endpoint")
		return bridgeStats{}, err
	}
	spinner.Success()
	return parseStats(string(body)), nil
}

func parseMetricValue(line string) int64 {
	fields := strings.Split(line, " ")
	flt, _, err := big.ParseFloat(fields[len(fields)-1], 10, 0, big.ToNearestEven)
	if err != nil {
		return 0
	}
	n, _ := flt.Int64()
	return n
}

func parseStats(body string) bridgeStats {
	var s bridgeStats
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "p3_bridge_frames_received_total"):
			s.framesReceived = parseMetricValue(line)
		case strings.HasPrefix(line, "p3_bridge_records_parsed_total"):
			s.recordsParsed = parseMetricValue(line)
		case strings.HasPrefix(line, "p3_bridge_http_enqueued_total"):
			s.httpEnqueued = parseMetricValue(line)
		case strings.HasPrefix(line, "p3_bridge_http_drained_fail_total"):
			s.httpDrainedFail = parseMetricValue(line)
		case strings.HasPrefix(line, "p3_bridge_queue_depth"):
			s.queueDepth = parseMetricValue(line)
		case strings.HasPrefix(line, "p3_bridge_tcp_connected"):
			s.tcpConnected = parseMetricValue(line)
		}
	}
	return s
}
