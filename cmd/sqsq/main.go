// Command sqsq pushes JSON payloads to, and pulls them from, AWS SQS queues
// through the queue engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slackmgr/sqsq/queue"
	"github.com/slackmgr/sqsq/sqs"
	"github.com/slackmgr/types"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "sqsq",
		Short:        "Push to and pull from SQS queues",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newPushCmd(), newPullCmd())

	return rootCmd
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <queue> <json>",
		Short: "Send one JSON payload to a queue",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			queueName, raw, err := pushArgs(cfg, args)
			if err != nil {
				return err
			}

			var payload any
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				return fmt.Errorf("payload is not valid JSON: %w", err)
			}

			logger, err := newLogger(cfg.LogLevel, cfg.LogJSON)
			if err != nil {
				return err
			}
			defer logger.sync()

			engine, err := newEngine(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}

			if err := engine.Push(cmd.Context(), queueName, payload); err != nil {
				return fmt.Errorf("failed to push to %s: %w", queueName, err)
			}

			logger.WithField("queue", queueName).Info("Message pushed")

			return engine.Stop(cmd.Context())
		},
	}
}

// pushArgs accepts either "<queue> <json>", or "<json>" with the queue taken
// from SQSQ_QUEUE.
func pushArgs(cfg *config, args []string) (string, string, error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}

	queueName, err := cfg.queueName(nil)
	if err != nil {
		return "", "", err
	}

	return queueName, args[0], nil
}

func newPullCmd() *cobra.Command {
	var (
		workers int
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "pull [queue]",
		Short: "Consume a queue, writing every payload to stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
				if err := cfg.validate(); err != nil {
					return err
				}
			}

			queueName, err := cfg.queueName(args)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.LogLevel, cfg.LogJSON)
			if err != nil {
				return err
			}
			defer logger.sync()

			return runPull(cmd.Context(), cfg, logger, queueName, raw, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of concurrent workers (overrides SQSQ_WORKERS)")
	cmd.Flags().BoolVar(&raw, "raw", false, "write message bodies without decoding them")

	return cmd
}

func runPull(ctx context.Context, cfg *config, logger types.Logger, queueName string, raw bool, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := newEngine(ctx, cfg, logger, registry)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var outMu sync.Mutex

	enc := json.NewEncoder(out)

	handler := queue.SyncHandler(func(_ context.Context, payload any) error {
		outMu.Lock()
		defer outMu.Unlock()

		if s, ok := payload.(string); ok && raw {
			_, err := fmt.Fprintln(out, s)
			return err
		}

		return enc.Encode(payload)
	})

	opts := []queue.PollOption{
		queue.WithWorkers(cfg.Workers),
		queue.WithMaxNumberOfMessages(cfg.MaxMessages),
		queue.WithVisibilityTimeout(cfg.VisibilityTime),
		queue.WithWaitTimeSeconds(cfg.WaitTimeSeconds),
	}
	if raw {
		opts = append(opts, queue.WithRaw())
	}

	fatal := make(chan error, 1)
	engine.OnError(func(err error) {
		select {
		case fatal <- err:
		default:
		}
	})

	// The pull context stays alive after a signal so that in-flight handlers
	// can finish; Stop drains the workers instead.
	if err := engine.Pull(context.WithoutCancel(ctx), queueName, handler, opts...); err != nil {
		return fmt.Errorf("failed to pull from %s: %w", queueName, err)
	}

	logger.WithFields(map[string]any{"queue": queueName, "workers": cfg.Workers}).Info("Pulling messages")

	var fatalErr error

	select {
	case <-ctx.Done():
		logger.Info("Signal received, stopping")
	case fatalErr = <-fatal:
		logger.Errorf("Stopping after fatal error: %v", fatalErr)
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.StopTimeout)
	defer cancel()

	if err := engine.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}

	logger.Info("Stopped")

	return fatalErr
}

func newEngine(ctx context.Context, cfg *config, logger types.Logger, reg prometheus.Registerer) (*queue.Engine, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client, err := sqs.New(&awsCfg, logger, sqs.WithFifoMessageGroupID(cfg.FifoGroupID)).Init(ctx)
	if err != nil {
		return nil, err
	}

	opts := []queue.Option{}
	if reg != nil {
		opts = append(opts, queue.WithMetrics(reg))
	}

	engine, err := queue.New(client, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue engine: %w", err)
	}

	engine.OnProcessingError(func(perr *queue.ProcessingError) {
		logger.WithFields(map[string]any{
			"queue":      perr.Queue,
			"message_id": perr.MessageID,
			"stage":      perr.Stage,
		}).Warnf("Message not processed: %v", perr.Err)
	})

	return engine, nil
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, logger types.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()

	logger.WithField("addr", addr).Info("Serving metrics")

	return srv
}
