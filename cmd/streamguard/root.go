package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/streamguard/pkg/config"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	sgio "github.com/hed1ad/streamguard/pkg/io"
	"github.com/hed1ad/streamguard/pkg/io/jsonl"
	"github.com/hed1ad/streamguard/pkg/logging"
	"github.com/hed1ad/streamguard/pkg/metrics"
	"github.com/hed1ad/streamguard/pkg/pipeline"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/store"
	"github.com/hed1ad/streamguard/pkg/store/sqlite"
)

const sqliteScheme = "sqlite://"

// flagKeys maps persistent flags to runtime setting keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
	"store":        "store.dsn",
	"metrics-addr": "metrics.addr",
	"batch-size":   "batch.size",
	"interval":     "batch.interval",
	"prefix":       "instance.prefix",
}

type app struct {
	configPath  string
	runtimePath string
	output      string

	runtime config.Runtime
	logger  *zap.Logger

	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand returns the streamguard command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut, logger: zap.NewNop()}
	d := config.DefaultRuntime()

	cmd := &cobra.Command{
		Use:           "streamguard",
		Short:         "Streaming anomaly detection for multi-column telemetry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "detection configuration file (YAML)")
	pf.StringVar(&a.runtimePath, "runtime", "", "runtime settings file (YAML)")
	pf.StringVarP(&a.output, "output", "o", "-", "anomaly output file, - for stdout")
	pf.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	pf.String("log-format", d.Log.Format, "log format (console, json)")
	pf.String("log-file", d.Log.File, "log file, rotated by size; empty logs to stderr")
	pf.String("store", d.Store.DSN, "model store: a directory, or sqlite://<path>")
	pf.String("metrics-addr", d.Metrics.Addr, "serve Prometheus metrics on this address")
	pf.Int("batch-size", d.Batch.Size, "rows per detection batch")
	pf.String("interval", d.Batch.Interval.String(), "packet aggregation interval")
	pf.String("prefix", d.Instance.Prefix, "detector instance name prefix")

	cmd.AddCommand(newDetectCmd(a), newPcapCmd(a))
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.NewViper(a.runtimePath)
	if err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	rt, err := config.RuntimeFrom(v)
	if err != nil {
		return err
	}

	lc := logging.DefaultConfig()
	lc.Level = rt.Log.Level
	lc.Format = rt.Log.Format
	lc.File = rt.Log.File
	logger, err := logging.New(lc)
	if err != nil {
		return err
	}

	a.runtime = rt
	a.logger = logger
	return nil
}

// session holds what one detection run needs.
type session struct {
	orchestrator *pipeline.Orchestrator
	models       store.ModelStore
	modelName    string
	writer       *jsonl.Writer
	server       *http.Server
	logger       *zap.Logger
}

func (a *app) open() (*session, error) {
	if a.configPath == "" {
		return nil, errdefs.MissingParameter("--config")
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	o, err := pipeline.New(cfg,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(m),
		pipeline.WithPrefix(a.runtime.Instance.Prefix),
	)
	if err != nil {
		return nil, err
	}

	s := &session{
		orchestrator: o,
		modelName:    a.runtime.Instance.Prefix + "model",
		logger:       a.logger,
	}
	if a.output == "-" {
		s.writer = jsonl.NewWriter(a.stdout)
	} else if s.writer, err = jsonl.Create(a.output); err != nil {
		return nil, err
	}
	if s.models, err = openModelStore(a.runtime.Store.DSN); err != nil {
		s.writer.Close()
		return nil, err
	}
	if s.models != nil {
		err := o.LoadModelFrom(context.Background(), s.models, s.modelName)
		switch {
		case errors.Is(err, store.ErrNotFound):
			a.logger.Info("no stored model, starting cold", zap.String("model", s.modelName))
		case err != nil:
			s.models.Close()
			s.writer.Close()
			return nil, fmt.Errorf("load model: %w", err)
		default:
			a.logger.Info("model loaded", zap.String("model", s.modelName))
		}
	}

	if addr := a.runtime.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		s.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		a.logger.Info("serving metrics", zap.String("addr", addr))
	}
	return s, nil
}

func openModelStore(dsn string) (store.ModelStore, error) {
	switch {
	case dsn == "":
		return nil, nil
	case strings.HasPrefix(dsn, sqliteScheme):
		return sqlite.Open(strings.TrimPrefix(dsn, sqliteScheme))
	default:
		return store.NewFileStore(dsn)
	}
}

// run feeds every batch of r through the orchestrator until r is drained or
// ctx is cancelled. SIGHUP requests cache maintenance.
func (s *session) run(ctx context.Context, r sgio.Reader) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	batches, err := r.Stream(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-hup:
			s.logger.Info("maintenance requested")
			s.orchestrator.RequestMaintenance()
		case f, ok := <-batches:
			if !ok {
				if err := r.Err(); err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				return ctx.Err()
			}
			if err := s.detect(f); err != nil {
				return err
			}
		}
	}
}

func (s *session) detect(f *series.Frame) error {
	results, err := s.orchestrator.Run(f)
	switch {
	case errdefs.IsRecoverable(err), errors.Is(err, errdefs.ErrDataQuality):
		return nil
	case err != nil:
		return err
	}

	for i, p := range s.orchestrator.Pipelines() {
		if err := s.writer.WriteAll(sgio.Results(p.Name(), p.Kind().String(), results[i])); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}
	return nil
}

// close saves the model and releases the session.
func (s *session) close() error {
	var errs []error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.server.Shutdown(ctx))
		cancel()
	}
	if s.models != nil {
		if err := s.orchestrator.SaveModel(context.Background(), s.models, s.modelName); err != nil {
			errs = append(errs, fmt.Errorf("save model: %w", err))
		} else {
			s.logger.Info("model saved", zap.String("model", s.modelName))
		}
		errs = append(errs, s.models.Close())
	}
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	return errors.Join(errs...)
}

// serve opens a session, runs r through it and closes both.
func (a *app) serve(cmd *cobra.Command, r sgio.Reader) (err error) {
	defer r.Close()

	s, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close())
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = s.run(ctx, r)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
