//go:build linux

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/dshulyak/playground/agent"
	"github.com/dshulyak/playground/logger"
	"github.com/dshulyak/playground/options"
	"github.com/dshulyak/playground/version"
)

/**
 * Application entry point.
 */
func main() {
	cmd := &cli.Command{
		Name:    "playagent",
		Usage:   "Per-host agent accepting playground plans over HTTP.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Value:   "0.0.0.0:7777",
				Usage:   "Listen address for the agent",
			},
			&cli.StringFlag{
				Name:    "vxlan-device",
				Aliases: []string{"d"},
				Usage:   "Device to use for vxlan tunnelling. Needs multicast support and reachability to the other agents",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log verbosity (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format (text|json)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			level, err := options.ParseLogLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			format, err := options.ParseLogFormat(c.String("log-format"))
			if err != nil {
				return err
			}
			logger.CreateLogger(&logger.LoggerOpts{LogLevel: level, LogFormat: format})
			return serve(c.String("listen"), c.String("vxlan-device"))
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(listen, vxlanDevice string) error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to read hostname: %w", err)
	}
	server := newServer(agent.HostInfo{
		Hostname:    hostname,
		VxlanDevice: vxlanDevice,
	})

	router := mux.NewRouter()
	router.HandleFunc("/host", server.getHostInfo).Methods(http.MethodGet)
	router.HandleFunc("/network", server.getNetworkState).Methods(http.MethodGet)
	router.HandleFunc("/network", server.setNetworkState).Methods(http.MethodPost)
	router.HandleFunc("/worker/run", server.workerRun).Methods(http.MethodPost)
	router.HandleFunc("/worker/stop", server.workerStop).Methods(http.MethodPost)
	router.HandleFunc("/worker/status", server.workerStatus).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(server.metrics, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: listen, Handler: router}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		slog.Info("received interrupt, stopping agent")
		server.stopWorker()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}()

	slog.Info("listening", "addr", listen, "host", hostname, "vxlan_device", vxlanDevice)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

/**
 * The agent's HTTP surface: one staged plan, one worker at a time.
 */
type server struct {
	host agent.HostInfo

	mu        sync.Mutex
	data      *agent.Data
	status    agent.WorkerStatus
	runID     string
	failure   error
	interrupt chan struct{}
	done      chan struct{}

	metrics         *prometheus.Registry
	stagedInstances prometheus.Gauge
	workerRunning   prometheus.Gauge
}

func newServer(host agent.HostInfo) *server {
	s := &server{
		host:    host,
		status:  agent.StatusPending,
		metrics: prometheus.NewRegistry(),
		stagedInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playground_staged_instances",
			Help: "Number of instances in the staged plan.",
		}),
		workerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playground_worker_running",
			Help: "1 while the worker is deployed and supervising commands.",
		}),
	}
	s.metrics.MustRegister(s.stagedInstances, s.workerRunning)
	return s
}

func (s *server) getHostInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host)
}

func (s *server) getNetworkState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		writeJSON(w, http.StatusNotFound, s.response())
		return
	}
	writeJSON(w, http.StatusOK, s.data)
}

/**
 * Stages a plan. Conflicts while a worker is running or stopping; a
 * finished worker's plan may be replaced.
 */
func (s *server) setNetworkState(w http.ResponseWriter, r *http.Request) {
	var data agent.Data
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, fmt.Sprintf("decode plan: %v", err), http.StatusBadRequest)
		return
	}
	if data.Plan == nil {
		http.Error(w, "plan is required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case agent.StatusPending, agent.StatusStopped, agent.StatusFailed:
		s.data = &data
		s.status = agent.StatusPending
		s.failure = nil
		s.stagedInstances.Set(float64(len(data.Plan.Veth)))
		writeJSON(w, http.StatusOK, s.response())
	default:
		slog.Debug("worker is not in pending state", "status", s.status)
		writeJSON(w, http.StatusConflict, s.response())
	}
}

func (s *server) workerRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != agent.StatusPending || s.data == nil {
		writeJSON(w, http.StatusConflict, s.response())
		return
	}
	s.status = agent.StatusRunning
	s.runID = uuid.New().String()
	s.interrupt = make(chan struct{})
	s.done = make(chan struct{})
	s.workerRunning.Set(1)

	data := s.data
	interrupt := s.interrupt
	done := s.done
	go func() {
		err := work(data, interrupt)
		s.mu.Lock()
		s.failure = err
		if err != nil {
			s.status = agent.StatusFailed
		} else {
			s.status = agent.StatusStopped
		}
		s.workerRunning.Set(0)
		s.mu.Unlock()
		close(done)
	}()
	writeJSON(w, http.StatusOK, s.response())
}

func (s *server) workerStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptWorker()
	writeJSON(w, http.StatusOK, s.response())
}

func (s *server) workerStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.response())
}

/**
 * Interrupts the worker during agent shutdown and waits for cleanup.
 */
func (s *server) stopWorker() {
	s.mu.Lock()
	s.interruptWorker()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Caller holds the lock.
func (s *server) interruptWorker() {
	if s.status == agent.StatusRunning && s.interrupt != nil {
		close(s.interrupt)
		s.interrupt = nil
		s.status = agent.StatusStopping
	}
}

// Caller holds the lock.
func (s *server) response() agent.StatusResponse {
	resp := agent.StatusResponse{Status: s.status, RunID: s.runID}
	if s.failure != nil {
		resp.Error = s.failure.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
