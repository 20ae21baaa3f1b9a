package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Exam-Prep-Assessment-Backend/internal/api"
	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/router"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "exam-prep",
	Short: "Question generation and answer evaluation backend",
	Long: `Generates exam questions from study material with an LLM and grades
student answers. Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, generateCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	gin.SetMode(a.cfg.Server.Mode)
	limiter := api.NewRateLimiter(a.cfg.RateLimit)
	config.Watch(a.v, func(cfg *config.Config, e fsnotify.Event) {
		limiter.Update(cfg.RateLimit)
		a.log.Info("config reloaded", zap.String("file", e.Name),
			zap.Duration("min_interval", cfg.RateLimit.MinInterval), zap.Int("daily_quota", cfg.RateLimit.DailyQuota))
	})

	handler := api.NewExamHandler(a.generation, a.evaluation, a.assessments, a.cfg.Generation.MinContentLength, a.log)
	r := router.SetupRouter(handler, limiter, a.metrics, a.log, a.cfg.CORS.AllowedOrigins)

	srv := &http.Server{Addr: a.cfg.Server.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", zap.String("addr", fmt.Sprintf("http://localhost%s", a.cfg.Server.Port)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
	}
	return nil
}
