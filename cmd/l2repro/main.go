// Command l2repro runs the second-level cache consistency scenarios against
// the configured datastore and prints one line per scenario.
//
//	l2repro -config config.yaml -scenario simple-case
//
// The exit status is 1 when any scenario fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/pkg/config"
	"github.com/goliatone/go-entity-cache/pkg/di"
	"github.com/goliatone/go-entity-cache/scenarios"
)

type options struct {
	configPath  string
	scenario    string
	list        bool
	metricsAddr string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	flag.StringVar(&opts.scenario, "scenario", "", "run a single scenario by name")
	flag.BoolVar(&opts.list, "list", false, "list the scenarios and exit")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve region statistics on this address after the run")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, opts, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "l2repro: %v\n", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, opts options, out io.Writer) (int, error) {
	if opts.list {
		for _, sc := range scenarios.All() {
			fmt.Fprintf(out, "%-52s %s\n", sc.Name, sc.Description)
		}
		return 0, nil
	}

	selected := scenarios.All()
	if opts.scenario != "" {
		sc, ok := scenarios.Lookup(opts.scenario)
		if !ok {
			return 2, fmt.Errorf("unknown scenario %q", opts.scenario)
		}
		selected = []scenarios.Scenario{sc}
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return 2, err
	}

	c, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return 1, err
	}
	defer c.Close()

	m := c.Manager()
	if err := scenarios.Register(ctx, m); err != nil {
		return 1, err
	}

	results := make([]scenarios.Result, 0, len(selected))
	failed := 0
	for _, sc := range selected {
		r := scenarios.Run(ctx, m, sc)
		if !r.Passed() {
			failed++
		}
		results = append(results, r)
	}
	fmt.Fprint(out, scenarios.Report(results))
	fmt.Fprintf(out, "%d passed, %d failed\n", len(results)-failed, failed)

	if opts.metricsAddr != "" {
		if err := serveMetrics(ctx, c, opts.metricsAddr); err != nil {
			return 1, err
		}
	}

	if failed > 0 {
		return 1, nil
	}
	return 0, nil
}

func serveMetrics(ctx context.Context, c *di.Container, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	c.Logger().Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
