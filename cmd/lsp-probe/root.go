package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/lsp-jsonrpc-go/client"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/config"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/console"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/proc"
	"github.com/ggoodman/lsp-jsonrpc-go/lsp"
)

type app struct {
	out    io.Writer
	errOut io.Writer
}

type probeFlags struct {
	language string
	color    string
	bodies   bool
}

func newRootCmd(a *app, cfg config.ProbeConfig) *cobra.Command {
	var pf probeFlags

	cmd := &cobra.Command{
		Use:   "lsp-probe [flags] [-- command [args...]]",
		Short: "Drive a language server through a short LSP session",
		Long: `lsp-probe starts a language server, sends initialize, initialized, hover,
completion, definition, shutdown and exit, and prints every message.

The server is taken from the command after "--" when one is given, otherwise
from --server (or --language) looked up in the servers file. Without
--config the built-in table is used, where "mock" runs mock-lsp-server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := resolveServer(cfg, pf.language, cmd.Flags().Changed("server"), args)
			if err != nil {
				return err
			}
			if spec.StopGrace.Duration > 0 && !cmd.Flags().Changed("stop-grace") {
				cfg.StopGrace = spec.StopGrace.Duration
			}
			pr, err := newPrinter(a.out, pf)
			if err != nil {
				return err
			}
			return a.probe(cmd.Context(), cfg, spec, pr)
		},
	}

	cmd.PersistentFlags().StringVar(&cfg.ServersFile, "config", cfg.ServersFile, "servers file (JSON or YAML)")

	f := cmd.Flags()
	f.StringVar(&cfg.Server, "server", cfg.Server, "server name from the servers file")
	f.StringVar(&pf.language, "language", "", "pick the first server handling this language")
	f.StringVar(&cfg.URI, "uri", cfg.URI, "document URI for the position requests")
	f.IntVar(&cfg.Line, "line", cfg.Line, "zero-based line for the position requests")
	f.IntVar(&cfg.Character, "character", cfg.Character, "zero-based character for the position requests")
	f.DurationVar(&cfg.StopGrace, "stop-grace", cfg.StopGrace, "time the server gets to exit before it is killed")
	f.DurationVar(&cfg.CallTimeout, "timeout", cfg.CallTimeout, "timeout for each request")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level for stderr diagnostics")
	f.StringVar(&pf.color, "color", "auto", "colorize output: auto, always, never")
	f.BoolVarP(&pf.bodies, "verbose", "v", false, "print message payloads")

	cmd.AddCommand(newServersCmd(a, &cfg))
	return cmd
}

func newServersCmd(a *app, cfg *config.ProbeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the servers lsp-probe can launch",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			servers, err := loadServers(*cfg)
			if err != nil {
				return err
			}
			for _, name := range servers.Names() {
				spec := servers.Servers[name]
				fmt.Fprintf(a.out, "%-16s %s  [%s]\n", name,
					strings.Join(append([]string{spec.Command}, spec.Args...), " "),
					strings.Join(spec.Languages, ","))
			}
			return nil
		},
	}
}

func newPrinter(w io.Writer, pf probeFlags) (*console.Printer, error) {
	opts := []console.Option{console.WithBodies(pf.bodies)}
	switch pf.color {
	case "auto":
	case "always":
		opts = append(opts, console.WithColor(true))
	case "never":
		opts = append(opts, console.WithColor(false))
	default:
		return nil, fmt.Errorf("invalid --color %q", pf.color)
	}
	return console.New(w, opts...), nil
}

func loadServers(cfg config.ProbeConfig) (*config.Servers, error) {
	if cfg.ServersFile == "" {
		return config.DefaultServers(), nil
	}
	return config.LoadServers(cfg.ServersFile)
}

// resolveServer picks the server to launch: an explicit command line wins,
// then --language unless --server was given, then the configured name.
func resolveServer(cfg config.ProbeConfig, language string, serverSet bool, argv []string) (config.ServerSpec, error) {
	if len(argv) > 0 {
		return config.ServerSpec{Command: argv[0], Args: argv[1:]}, nil
	}
	servers, err := loadServers(cfg)
	if err != nil {
		return config.ServerSpec{}, err
	}
	if language != "" && !serverSet {
		_, spec, ok := servers.ForLanguage(language)
		if !ok {
			return config.ServerSpec{}, fmt.Errorf("%w for language %q", config.ErrUnknownServer, language)
		}
		return spec, nil
	}
	return servers.Lookup(cfg.Server)
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// probe launches spec, runs the scenario against it and stops it.
func (a *app) probe(ctx context.Context, cfg config.ProbeConfig, spec config.ServerSpec, pr *console.Printer) error {
	log, err := config.NewLogger(a.errOut, cfg.LogLevel, "text")
	if err != nil {
		return err
	}

	p, err := proc.Start(ctx, proc.Command{
		Path:   spec.Command,
		Args:   spec.Args,
		Env:    envList(spec.Env),
		Stderr: a.errOut,
	}, log)
	if err != nil {
		return err
	}
	pr.Step("launched %s (pid %d)", strings.Join(append([]string{spec.Command}, spec.Args...), " "), p.Pid())

	sess := client.NewSession(p.Stdout, p.Stdin, client.WithLogger(log), client.WithTracer(pr))
	sc := scenario{
		uri:         cfg.URI,
		pos:         lsp.Position{Line: cfg.Line, Character: cfg.Character},
		callTimeout: cfg.CallTimeout,
		pr:          pr,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(gctx)
	})
	g.Go(func() error {
		err := sc.run(gctx, sess)
		if err == nil {
			_ = stopWithin(gctx, p, cfg.StopGrace, func() { _ = sess.Close() })
		}
		_ = sess.Close()
		return err
	})
	runErr := g.Wait()

	// Stop only takes effect once; after stopWithin this returns its result.
	stopErr := p.Stop(cfg.StopGrace)
	if stopErr != nil {
		pr.Failure("stop", stopErr)
	} else if waitErr := p.Wait(); waitErr != nil {
		log.Info("probe.server.exit", slog.String("status", waitErr.Error()))
	}

	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(runErr, stopErr)
}

// stopWithin gives p half of grace to exit on its own, then runs before and
// stops p with whatever is left, so the whole stop takes about grace at most.
func stopWithin(ctx context.Context, p *proc.Process, grace time.Duration, before func()) error {
	deadline := time.Now().Add(grace)
	t := time.NewTimer(grace / 2)
	defer t.Stop()
	select {
	case <-p.Done():
	case <-t.C:
	case <-ctx.Done():
	}
	if before != nil {
		before()
	}
	return p.Stop(max(time.Until(deadline), 10*time.Millisecond))
}
