// Command statsdagentd runs a single metrics manager against atoms
// delivered over a unix domain socket, dumping and encoding a report on a
// fixed interval (logging its metric count and encoded size to stdout) and
// serving Prometheus telemetry over HTTP.
//
// The OS socket transport, the configuration-loading pipeline, and the
// uid-to-package map are all external collaborators per §1 Non-goals;
// this binary supplies the simplest production stand-ins for them so the
// engine underneath has somewhere real to run.
package main

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WingsOS/android-packages-modules-StatsD/alarmsvc"
	"github.com/WingsOS/android-packages-modules-StatsD/manager"
	"github.com/WingsOS/android-packages-modules-StatsD/store"
	"github.com/WingsOS/android-packages-modules-StatsD/wire"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	socketPath := getEnvString("STATSD_SOCKET", "/run/statsd/atoms.sock")
	dbPath := getEnvString("STATSD_STORE", "/var/lib/statsd/restricted.db")
	metricsAddr := getEnvString("STATSD_METRICS_ADDR", ":9464")
	dumpInterval := getEnvDuration("STATSD_DUMP_INTERVAL", 60*time.Second)

	reg := prometheus.NewRegistry()
	stats := manager.NewStats(reg)

	st, err := store.Open(dbPath)
	if err != nil {
		logger.Error("failed to open restricted-metric store", "error", err, "path", dbPath)
		os.Exit(1)
	}
	defer st.Close()

	sched := alarmsvc.NewCronScheduler()
	defer sched.Stop()

	mm := manager.New(stats, st, sched, logger)

	go serveMetrics(metricsAddr, reg, logger)
	go dumpLoop(mm, dumpInterval, logger)

	logger.Info("statsdagentd starting", "socket", socketPath)
	if err := serveAtoms(mm, socketPath, logger); err != nil {
		logger.Error("atom server exited", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving prometheus metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", "error", err)
	}
}

// dumpLoop periodically flushes rolled-over buckets, runs anomaly
// detection, and dumps a report — the stand-in for the original's
// StatsCompanionService dump-report binder call, invoked here on a fixed
// wall-clock cadence instead of on demand.
func dumpLoop(mm *manager.MetricsManager, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for now := range ticker.C {
		nowNs := now.UnixNano()
		nowSec := now.Unix()
		mm.FlushAndDetect(nowNs, nowSec)
		r := mm.DumpReport(true)
		data := wire.EncodeReport(r)
		logger.Info("report dumped", "config_key", r.ConfigKey, "metrics", len(r.Metrics), "bytes", len(data))
	}
}

// serveAtoms accepts connections on a unix domain socket and decodes a
// stream of length-prefixed atom records from each, per §6's inbound wire
// format.
func serveAtoms(mm *manager.MetricsManager, socketPath string, logger *slog.Logger) error {
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go handleConn(mm, conn, logger)
	}
}

func handleConn(mm *manager.MetricsManager, conn net.Conn, logger *slog.Logger) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		atom, err := wire.DecodeAtom(r)
		if err != nil {
			return
		}
		mm.OnAtom(atom, time.Now().UnixNano())
	}
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

