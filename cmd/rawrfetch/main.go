// Command rawrfetch lists workspace companies through the rawrFetch data
// layer: cached, rate limited, retried and paginated on the client.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	rawrfetch "github.com/Keksclan/rawrFetch"
	"github.com/Keksclan/rawrFetch/contextx"
	"github.com/Keksclan/rawrFetch/internal/config"
	"github.com/Keksclan/rawrFetch/page"
	"github.com/Keksclan/rawrFetch/poll"
	"github.com/Keksclan/rawrFetch/resource"
	"github.com/Keksclan/rawrFetch/tracing"
	"github.com/Keksclan/rawrFetch/workspace"
)

type flags struct {
	envFile  string
	search   string
	status   string
	sortBy   string
	desc     bool
	page     int
	pageSize int
	watch    time.Duration
}

func main() {
	var f flags
	flag.StringVar(&f.envFile, "env", ".env", "dotenv file to load")
	flag.StringVar(&f.search, "search", "", "filter companies by name or ID")
	flag.StringVar(&f.status, "status", workspace.StatusAll, "filter companies by status")
	flag.StringVar(&f.sortBy, "sort", string(workspace.SortByName), "sort field: name, status, users or createdAt")
	flag.BoolVar(&f.desc, "desc", false, "sort descending")
	flag.IntVar(&f.page, "page", 1, "page to print")
	flag.IntVar(&f.pageSize, "page-size", 10, "companies per page")
	flag.DurationVar(&f.watch, "watch", 0, "refetch and reprint on this interval")
	flag.Parse()

	cfg, err := config.Load(f.envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log)
	if err := run(cfg, f, logger); err != nil {
		level.Error(logger).Log("msg", "rawrfetch failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) log.Logger {
	var logger log.Logger
	if cfg.Format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(cfg.Level, level.InfoValue())))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func run(cfg *config.Config, f flags, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := append(rawrfetch.DefaultOptions(),
		rawrfetch.WithLogger(logger),
		rawrfetch.WithMetrics(reg),
		rawrfetch.WithTimeout(cfg.API.Timeout),
		rawrfetch.WithCache(cfg.Cache.Capacity, cfg.Cache.TTL),
		rawrfetch.WithRateLimitGlobal(cfg.API.RateLimit, cfg.API.RateBurst),
	)
	if cfg.Cache.L1MaxCost > 0 {
		opts = append(opts, rawrfetch.WithCacheL1(cfg.Cache.L1MaxCost))
	}
	if cfg.Cache.RedisAddr != "" {
		opts = append(opts, rawrfetch.WithCacheRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB))
	}
	if cfg.Cache.SQLitePath != "" {
		opts = append(opts, rawrfetch.WithCacheSQLite(cfg.Cache.SQLitePath))
	}
	if cfg.API.Token != "" {
		token := cfg.API.Token
		opts = append(opts, rawrfetch.WithTokenSource(func(context.Context) (string, error) { return token, nil }))
	}
	if cfg.Debug.TraceStdout {
		tp, err := stdoutTracerProvider()
		if err != nil {
			return err
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts = append(opts, rawrfetch.WithOpenTelemetry(&tracing.Config{
			TracerProvider: tp,
			Propagators:    propagation.TraceContext{},
		}))
	}

	client, err := rawrfetch.New(cfg.API.BaseURL, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.Debug.Addr != "" {
		srv := &http.Server{Addr: cfg.Debug.Addr, Handler: debugRouter(client), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			level.Info(logger).Log("msg", "debug server listening", "addr", cfg.Debug.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				level.Error(logger).Log("msg", "debug server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.API.CompanyID != "" {
		ctx = contextx.WithWorkspace(ctx, contextx.Workspace{CompanyID: cfg.API.CompanyID})
	}

	filter := workspace.CompanyFilter{Search: f.search, Status: f.status}
	companies := rawrfetch.NewResource[[]workspace.Company](client)
	defer companies.Close()

	companies.Load(ctx, filter.Key(), func(ctx context.Context) ([]workspace.Company, error) {
		return workspace.Companies(ctx, client.API(), filter)
	})
	if err := printPage(ctx, companies.Resource, f); err != nil {
		return err
	}
	if f.watch <= 0 {
		return nil
	}

	task := poll.Every(ctx, f.watch, func(ctx context.Context) {
		companies.Refetch(ctx)
		if err := printPage(ctx, companies.Resource, f); err != nil {
			level.Warn(logger).Log("msg", "refresh failed", "err", err)
		}
	})
	<-ctx.Done()
	task.Stop()
	return nil
}

// printPage waits for r to settle, then prints the requested page. A failed
// fetch with earlier data prints the stale data and returns the error.
func printPage(ctx context.Context, r *resource.Resource[[]workspace.Company], f flags) error {
	st, err := r.Wait(ctx)
	if err != nil {
		return err
	}
	if st.Err != nil && !st.HasData {
		return st.Err
	}

	items := workspace.FilterCompanies(st.Data, f.search, f.status)
	items = workspace.SortCompanies(items, workspace.SortField(f.sortBy), f.desc)
	p := page.Slice(items, page.Window{CurrentPage: f.page, PageSize: f.pageSize})

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tUSERS\tCREATED")
	for _, c := range p.PageItems {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Name, c.Status, c.UserCount, c.CreatedAt.Format(time.DateOnly))
	}
	fmt.Fprintf(tw, "\npage %d/%d, %d companies\n", p.CurrentPage, p.TotalPages, p.TotalItems)
	if err := tw.Flush(); err != nil {
		return err
	}
	return st.Err
}

func debugRouter(client *rawrfetch.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", client.MetricsHandler())
	r.Get("/debug/cache", func(w http.ResponseWriter, _ *http.Request) {
		store := client.Cache()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"capacity": store.Capacity(),
			"ttl":      store.TTL().String(),
			"len":      store.Len(),
			"keys":     store.Keys(),
		})
	})
	return r
}

func stdoutTracerProvider() (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}
