package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cubbit/metafsd/internal/audit"
	"github.com/cubbit/metafsd/internal/config"
	"github.com/cubbit/metafsd/internal/contentstore"
	contentmemory "github.com/cubbit/metafsd/internal/contentstore/memory"
	contents3 "github.com/cubbit/metafsd/internal/contentstore/s3"
	"github.com/cubbit/metafsd/internal/executor"
	"github.com/cubbit/metafsd/internal/logger"
	"github.com/cubbit/metafsd/internal/metastore"
	"github.com/cubbit/metafsd/internal/metastore/badger"
	metamemory "github.com/cubbit/metafsd/internal/metastore/memory"
	"github.com/cubbit/metafsd/internal/metrics"
	"github.com/cubbit/metafsd/internal/netio"
	"github.com/cubbit/metafsd/internal/ratelimiter"
	"github.com/cubbit/metafsd/internal/reactor"
	"github.com/cubbit/metafsd/internal/roster"
	"github.com/cubbit/metafsd/internal/session"
	"github.com/cubbit/metafsd/internal/tunables"
	"github.com/mitchellh/mapstructure"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to $XDG_CONFIG_HOME/metafsd/config.yaml)")
	workers := flag.Int("workers", 4, "Number of executor/reactor affinity workers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	logOutput, closeLogOutput, err := openLogOutput(cfg.Logging.Output)
	if err != nil {
		log.Fatalf("failed to open log output %q: %v", cfg.Logging.Output, err)
	}
	defer closeLogOutput()
	logger.SetOutput(logOutput)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("metafsd - metadata filesystem daemon")
	logger.Info("log level set to: %s", cfg.Logging.Level)

	meta, err := openMetastore(cfg.Metadata)
	if err != nil {
		log.Fatalf("failed to open metadata store: %v", err)
	}
	defer meta.Close()

	blobs, err := openContentstore(ctx, cfg.Content)
	if err != nil {
		log.Fatalf("failed to open content store: %v", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	connMetrics := metrics.NewConnMetrics()

	auditLog := audit.New(os.Stdout)
	auditLog.SetEnabled(cfg.Tunables.AuditLogging)

	reg := tunables.New(*workers > 1)
	reg.SetAuditLog(auditLog)
	reg.Update(cfg.Tunables)

	limiter := ratelimiter.New(uint(cfg.RateLimit.RequestsPerSecond), uint(cfg.RateLimit.Burst))

	r := &roster.Roster{}
	exec := executor.New(meta, blobs, *workers)
	defer exec.Close()

	newHandler := func(conn *netio.TCPConn, affinity int) reactor.Handler {
		return session.New(conn, affinity, exec, reg, r, auditLog, connMetrics, limiter)
	}

	engine, err := reactor.New(newHandler, *workers)
	if err != nil {
		log.Fatalf("failed to build reactor engine: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.Server.ListenAddress, err)
	}
	logger.Info("listening on %s with %d workers", cfg.Server.ListenAddress, *workers)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(metrics.ServerConfig{Port: metricsPort(cfg.Metrics.Address)})
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server stopped: %v", err)
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- engine.Serve(ln) }()

	go pollLiveConnections(ctx, r, connMetrics)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)

	logger.Info("metafsd is running. Press Ctrl+C to stop.")

	for {
		select {
		case <-reloadChan:
			reloadConfig(*configPath, reg)
			continue
		case <-shutdownChan:
			logger.Info("shutdown signal received, initiating graceful shutdown...")
			cancel()
			_ = engine.Close()
			if err := <-serverDone; err != nil {
				logger.Error("server shutdown error: %v", err)
				os.Exit(1)
			}
			logger.Info("metafsd stopped gracefully")
		case err := <-serverDone:
			_ = engine.Close()
			if err != nil {
				logger.Error("server error: %v", err)
				os.Exit(1)
			}
			logger.Info("metafsd stopped")
		}
		return
	}
}

// reloadConfig re-reads the configuration file and pushes the tunables
// section into reg, implementing the SIGHUP reload path. Logging level
// and output are refreshed too; everything else (listen address,
// backend selection) requires a restart, matching the teacher's
// restart-for-topology-changes convention.
func reloadConfig(configPath string, reg *tunables.Registry) {
	logger.Info("SIGHUP received, reloading configuration")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("config reload failed, keeping previous configuration: %v", err)
		return
	}

	logger.SetLevel(cfg.Logging.Level)
	// The previous output (if a file) is intentionally left open rather
	// than closed here: closing it would race with in-flight writers
	// still holding the old logger.logger reference.
	if out, _, err := openLogOutput(cfg.Logging.Output); err != nil {
		logger.Error("config reload: failed to open log output %q: %v", cfg.Logging.Output, err)
	} else {
		logger.SetOutput(out)
	}

	reg.Update(cfg.Tunables)
	logger.Info("configuration reloaded")
}

// pollLiveConnections feeds connMetrics' live-connection gauge from
// the roster count, per spec.md §6's observability requirement.
func pollLiveConnections(ctx context.Context, r *roster.Roster, connMetrics metrics.ConnMetrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connMetrics.SetLiveConnections(r.Count())
		}
	}
}

// openLogOutput resolves LoggingConfig.Output into a writer: "stdout"
// and "stderr" map to the process streams, anything else is treated as
// a file path opened in append mode. The returned close func is a
// no-op for the process streams.
func openLogOutput(output string) (io.Writer, func() error, error) {
	switch output {
	case "stdout", "":
		return os.Stdout, func() error { return nil }, nil
	case "stderr":
		return os.Stderr, func() error { return nil }, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}

// badgerOptions is the typed shape of the metadata.badger config map,
// decoded with mapstructure rather than ad-hoc type assertions so a
// missing or mistyped key fails loudly instead of becoming "".
type badgerOptions struct {
	Dir string `mapstructure:"dir"`
}

// s3Options is the typed shape of the content.s3 config map.
type s3Options struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
}

func openMetastore(cfg config.MetadataConfig) (metastore.Store, error) {
	switch cfg.Type {
	case "badger":
		var opts badgerOptions
		if err := mapstructure.Decode(cfg.Badger, &opts); err != nil {
			return nil, fmt.Errorf("decode metadata.badger config: %w", err)
		}
		if opts.Dir == "" {
			opts.Dir = "/var/lib/metafsd/metadata"
		}
		return badger.Open(opts.Dir)
	default:
		return metamemory.New(), nil
	}
}

func openContentstore(ctx context.Context, cfg config.ContentConfig) (contentstore.Store, error) {
	switch cfg.Type {
	case "s3":
		var opts s3Options
		if err := mapstructure.Decode(cfg.S3, &opts); err != nil {
			return nil, fmt.Errorf("decode content.s3 config: %w", err)
		}
		if opts.Bucket == "" {
			return nil, fmt.Errorf("content.s3: bucket is required")
		}
		if opts.Region == "" {
			return nil, fmt.Errorf("content.s3: region is required")
		}
		return contents3.New(ctx, opts.Bucket, opts.Region)
	default:
		return contentmemory.New(), nil
	}
}

// metricsPort extracts the numeric port off a ":9090"-style listen
// address, since internal/metrics.Server takes a bare port number.
func metricsPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 9090
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 9090
	}
	return port
}
