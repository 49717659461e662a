package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/deletion"
	"github.com/roach88/lattice/internal/expiration"
)

// ExpireOptions holds flags for the expire command.
type ExpireOptions struct {
	*RootOptions
	Watch       bool
	Interval    time.Duration
	MetricsAddr string
}

// ExpireResult is the output of a single sweep.
type ExpireResult map[uuid.UUID]deletion.Result

func (r ExpireResult) String() string {
	if len(r) == 0 {
		return "Nothing expired"
	}
	ids := make([]uuid.UUID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", id, DeletionView{r[id]})
	}
	return sb.String()
}

// NewExpireCommand creates the expire command.
func NewExpireCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpireOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Apply the catalog's data expiration policies",
		Long: `Clear or delete entities whose retention period has passed, together
with their incident edges and association entities.

Without --watch a single sweep runs and its results are printed. With
--watch sweeps repeat every --interval until interrupted, and
--metrics-addr serves Prometheus metrics on /metrics meanwhile.

Example:
  lattice expire --catalog catalog.yaml
  lattice expire --catalog catalog.yaml --watch --interval 10m --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpire(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep sweeping until interrupted")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between sweeps (default LATTICE_EXPIRATION_INTERVAL)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default LATTICE_METRICS_ADDR)")

	return cmd
}

func runExpire(opts *ExpireOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	rt, err := openRuntime(ctx, cmd, opts.RootOptions)
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer rt.Close()

	if _, err := expiration.Policies(rt.catalog); err != nil {
		return formatter.Fail("invalid expiration policy", err)
	}
	sweeper := expiration.NewSweeper(rt.store, rt.data, rt.deleter, rt.catalog,
		expiration.WithLogger(rt.logger),
		expiration.WithWorkers(rt.cfg.ExpirationWorkers),
		expiration.WithMetrics(rt.metrics),
	)

	if !opts.Watch {
		results, err := sweeper.Sweep(ctx)
		if err != nil {
			return formatter.Fail("expiration sweep failed", err)
		}
		return formatter.Success(ExpireResult(results))
	}

	interval := opts.Interval
	if interval == 0 {
		interval = rt.cfg.ExpirationInterval
	}
	addr := opts.MetricsAddr
	if addr == "" {
		addr = rt.cfg.MetricsAddr
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	if addr != "" {
		srv := serveMetrics(addr, rt)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("error stopping metrics server", "error", err)
			}
		}()
	}

	slog.Info("expiration sweeper starting", "interval", interval, "workers", rt.cfg.ExpirationWorkers)
	if err := sweeper.Run(ctx, interval); err != nil {
		return formatter.Fail("expiration sweeper failed", err)
	}
	slog.Info("expiration sweeper stopped gracefully")
	return nil
}

// serveMetrics starts an HTTP server exposing the runtime's metrics.
func serveMetrics(addr string, rt *runtime) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
