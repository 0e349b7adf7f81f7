package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apitrips "github.com/kilianp07/evtrip/api/trips"
	"github.com/kilianp07/evtrip/app"
	"github.com/kilianp07/evtrip/infra/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planner with its HTTP API and MQTT bridge",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("main")
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           apitrips.NewRouter(svc, cfg.HTTP.Token, logger.New("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("http api listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server: %v", err)
			stop()
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return svc.Run(ctx)
}
