package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/executor"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/llm"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/policy"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/relay"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var policyPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, policyPath)
		},
	}
	cmd.Flags().StringVar(&policyPath, "policy", "", "rego file replacing the default code policy")
	return cmd
}

func (a *app) serve(ctx context.Context, policyPath string) error {
	log := a.logger

	policyContent := policy.DefaultPolicy
	if policyPath != "" {
		data, err := os.ReadFile(policyPath)
		if err != nil {
			return fmt.Errorf("failed to read policy: %w", err)
		}
		policyContent = string(data)
	}
	engine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	exec := executor.New(a.cfg.CodeRunTimeout, executor.WithLogger(log))
	opts := []relay.Option{relay.WithLogger(log)}
	if a.cfg.LLMBaseURL != "" {
		client := llm.NewClient(a.cfg.LLMBaseURL, a.cfg.LLMAPIKey, a.cfg.LLMTimeout)
		opts = append(opts, relay.WithResponder(llm.NewResponder(client, a.cfg.LLMModel)))
	}
	srv := relay.New(a.cfg.RelayConfig(), st, engine, exec, opts...)

	log.Info("Starting relay",
		zap.String("addr", a.cfg.ListenAddr),
		zap.String("database", a.cfg.DatabaseURL),
		zap.Strings("languages", a.cfg.AllowedLanguages),
		zap.Bool("llm", a.cfg.LLMBaseURL != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		if err := srv.Start(a.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start relay: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down relay...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shutdown relay gracefully", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Relay stopped")
	return nil
}
