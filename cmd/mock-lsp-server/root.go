package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/lsp-jsonrpc-go/dispatch"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/config"
	"github.com/ggoodman/lsp-jsonrpc-go/lsp"
	"github.com/ggoodman/lsp-jsonrpc-go/stdio"
)

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// exitCode is what the process should exit with once the command returns.
	exitCode int
}

func newRootCmd(a *app, cfg config.ServerConfig) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "mock-lsp-server",
		Short: "Mock language server speaking LSP over stdio",
		Long: `mock-lsp-server reads Content-Length framed JSON-RPC messages on stdin and
writes replies on stdout. Feature requests are answered from fixtures, which
can be replaced with --fixtures and reloaded on change with --watch.

Logs go to stderr. The process exits 0 after shutdown followed by exit, and 1
when the client exits without shutting down first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := a.serve(cmd.Context(), cfg, watch)
			if err != nil {
				return err
			}
			a.exitCode = code
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Fixtures, "fixtures", cfg.Fixtures, "YAML or JSON fixtures file overriding the built-in answers")
	f.BoolVar(&watch, "watch", false, "reload --fixtures when the file changes")
	f.BoolVar(&cfg.Strict, "strict", cfg.Strict, "reject requests before initialize and after shutdown")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address, e.g. :9464")
	f.Float64Var(&cfg.Rate, "rate", cfg.Rate, "handled calls per second for feature requests, 0 disables limiting; lifecycle methods are never limited")
	f.IntVar(&cfg.Burst, "burst", cfg.Burst, "rate limiter burst size, raised to 1 when lower")
	f.DurationVar(&cfg.HandlerTimeout, "handler-timeout", cfg.HandlerTimeout, "per-handler timeout, 0 disables it; a timed-out handler keeps running while the next message is handled")
	f.Int64Var(&cfg.MaxContentLength, "max-content-length", cfg.MaxContentLength, "largest accepted message body in bytes")

	cmd.AddCommand(newSchemaCmd(a))
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the fixtures file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(lsp.FixturesSchema())
		},
	}
}

// serve runs the server until the client exits, stdin closes or ctx ends, and
// returns the process exit code.
func (a *app) serve(ctx context.Context, cfg config.ServerConfig, watch bool) (int, error) {
	log, err := config.NewLogger(a.errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return 0, err
	}

	if watch && cfg.Fixtures == "" {
		return 0, errors.New("--watch requires --fixtures")
	}

	var srvOpts []lsp.Option
	srvOpts = append(srvOpts, lsp.WithLogger(log))
	if cfg.Strict {
		srvOpts = append(srvOpts, lsp.WithStrictLifecycle())
	}
	if cfg.Fixtures != "" {
		fx, err := lsp.LoadFixtures(cfg.Fixtures)
		if err != nil {
			return 0, err
		}
		srvOpts = append(srvOpts, lsp.WithFixtures(fx))
	}
	srv := lsp.NewServer(srvOpts...)

	reg := dispatch.NewRegistry()
	srv.Register(reg)

	mws := []dispatch.Middleware{dispatch.Logging(log)}
	var promReg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		promReg = prometheus.NewRegistry()
		m, err := dispatch.NewMetrics(promReg)
		if err != nil {
			return 0, err
		}
		mws = append(mws, m.Middleware())
	}
	if cfg.Rate > 0 {
		mws = append(mws, dispatch.RateLimit(cfg.Rate, cfg.Burst, lsp.LifecycleMethods()...))
	}
	if cfg.HandlerTimeout > 0 {
		mws = append(mws, dispatch.Timeout(cfg.HandlerTimeout))
	}

	d := dispatch.New(reg, dispatch.WithLogger(log), dispatch.WithMiddleware(mws...))
	h := stdio.NewHandler(d,
		stdio.WithIO(a.in, a.out),
		stdio.WithLogger(log),
		stdio.WithMaxContentLength(cfg.MaxContentLength),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Everything else winds down once the protocol stream is done.
		defer cancel()
		return h.Serve(gctx)
	})
	if watch {
		g.Go(func() error {
			return lsp.WatchFixtures(gctx, srv, cfg.Fixtures, log)
		})
	}
	if promReg != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, promReg, log)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return 0, err
	}

	log.Info("server.exit", slog.Int("code", srv.ExitCode()))
	return srv.ExitCode(), nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		errc <- hs.Serve(ln)
	}()
	log.Info("metrics.listen", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}
