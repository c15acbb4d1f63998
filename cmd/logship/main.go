// Command logship tails the systemd journal, enriches container log lines
// with pod metadata, and ships them to the ingestion endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/logship/pkg/client"
	"github.com/yairfalse/logship/pkg/collectors/journald"
	"github.com/yairfalse/logship/pkg/metrics"
	"github.com/yairfalse/logship/pkg/middleware"
	"github.com/yairfalse/logship/pkg/middleware/k8s"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LOGSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "logship",
		Short:         "Ship journald and container logs with pod metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("journal-dir", "/var/log/journal", "journal directory to tail")
	flags.StringSlice("journal-files", nil, "explicit journal files (overrides --journal-dir)")
	flags.String("ingest-url", "", "ingestion endpoint URL")
	flags.String("api-key", "", "ingestion API key")
	flags.Duration("ship-timeout", 30*time.Second, "timeout for one ship request")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	return cmd
}

func run(v *viper.Viper) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	journaldMetrics, err := metrics.NewJournald()
	if err != nil {
		return fmt.Errorf("failed to create journald metrics: %w", err)
	}
	k8sMetrics, err := metrics.NewK8s()
	if err != nil {
		return fmt.Errorf("failed to create k8s metrics: %w", err)
	}

	config := journald.DefaultConfig()
	if files := v.GetStringSlice("journal-files"); len(files) > 0 {
		config.Path = journald.FilesPath(files...)
	} else {
		config.Path = journald.DirectoryPath(v.GetString("journal-dir"))
	}

	stream, err := journald.NewStream(config, logger, journaldMetrics)
	if err != nil {
		return fmt.Errorf("failed to open journald stream: %w", err)
	}
	defer stream.Close()

	enricher, err := k8s.New(logger, k8sMetrics)
	if err != nil {
		return fmt.Errorf("failed to create k8s middleware: %w", err)
	}
	chain := middleware.NewChain()
	chain.Register(enricher)

	shipper, err := client.New(client.Config{
		URL:     v.GetString("ingest-url"),
		APIKey:  v.GetString("api-key"),
		Timeout: v.GetDuration("ship-timeout"),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create shipper: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		chain.Run(ctx)
		return nil
	})

	g.Go(func() error {
		for {
			lines, err := stream.Next(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, journald.ErrStreamClosed) {
					return nil
				}
				return err
			}

			lines = chain.Process(lines)
			if err := shipper.Send(ctx, lines); err != nil {
				logger.Warn("failed to ship line batch", zap.Error(err))
			}
		}
	})

	return g.Wait()
}
