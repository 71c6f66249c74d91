// Command agentd serves the weather agent over HTTP, or interactively with -repl.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentrunner/pkg/agent"
	"agentrunner/pkg/config"
	"agentrunner/pkg/logx"
	"agentrunner/pkg/metrics"
	"agentrunner/pkg/version"
	"agentrunner/pkg/webui"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file (optional; environment only when empty)")
		addr        = flag.String("addr", "", "Listen address, overrides server.addr")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides logging.level")
		repl        = flag.Bool("repl", false, "Chat on stdin/stdout instead of serving HTTP")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	os.Exit(run(*configPath, *addr, *logLevel, *repl))
}

// run holds the program so defers execute before os.Exit.
func run(configPath, addr, logLevel string, repl bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logx.SetLevel(logx.ParseLevel(cfg.Logging.Level))
	logger := logx.NewLogger("agentd")

	var (
		recorder       metrics.Recorder = metrics.Nop()
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	svc, err := agent.NewConversationService(cfg, recorder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create conversation service: %v\n", err)
		return 1
	}
	agentSvc, err := agent.Build(cfg, svc, recorder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create agent: %v\n", err)
		return 1
	}
	defer agentSvc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agentSvc.Start(ctx)
	logger.Info("agentd %s using %s model %s", version.Version, cfg.Conversation.Provider, cfg.Agent.Model)

	if repl {
		if err := runREPL(ctx, agentSvc, os.Stdin, os.Stdout); err != nil {
			logger.Error("REPL failed: %v", err)
			return 1
		}
		return 0
	}

	server := webui.NewServer(agentSvc, metricsHandler, cfg.Metrics.Path)
	if err := server.StartServer(ctx, cfg.Server.Addr); err != nil {
		logger.Error("Server failed: %v", err)
		return 1
	}
	logger.Info("Shutdown complete")
	return 0
}
