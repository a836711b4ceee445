package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/pucc/slapshot/internal/api"
	"github.com/pucc/slapshot/internal/config"
	"github.com/pucc/slapshot/internal/emailchange"
	"github.com/pucc/slapshot/internal/identity"
	"github.com/pucc/slapshot/internal/invite"
	"github.com/pucc/slapshot/internal/mail"
	"github.com/pucc/slapshot/internal/media"
	"github.com/pucc/slapshot/internal/metrics"
	"github.com/pucc/slapshot/internal/ratelimit"
	"github.com/pucc/slapshot/internal/storage"
	"github.com/pucc/slapshot/internal/team"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Slapshot Snapshot API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	files, err := storage.New(cfg.Uploads.Root)
	if err != nil {
		return err
	}

	var mailer mail.Sender
	if cfg.Mail.SMTPAddr != "" {
		mailer = mail.NewSMTPSender(cfg.Mail.SMTPAddr, cfg.Mail.FromName, cfg.Mail.FromAddress,
			cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword)
	} else {
		slog.Warn("no smtp relay configured, mail will be logged only")
		mailer = mail.LogSender{}
	}

	users := identity.NewStore(pool, cfg.Session.Lifetime)
	teams := team.NewStore(pool)
	invites := invite.NewStore(pool)
	mediaStore := media.NewStore(pool)

	emailChangeLimiter := ratelimit.NewLimiter(pool, ratelimit.EmailChangePolicy)
	inviteLimiter := ratelimit.NewLimiter(pool, ratelimit.InviteEmailPolicy)

	emailChange := emailchange.NewService(
		emailchange.NewPGStore(pool),
		mailer,
		emailChangeLimiter,
		cfg.App.BaseURL,
		cfg.Mail.SupportEmail,
	)

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})

	// Expired sessions accumulate slowly; sweep them in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := users.CleanExpiredSessions(ctx); err != nil {
					slog.Error("session cleanup failed", "error", err)
				} else if n > 0 {
					slog.Info("cleaned expired sessions", "count", n)
				}
			}
		}
	}()

	router := api.NewRouter(api.RouterDeps{
		Pool:          pool,
		Users:         users,
		Teams:         teams,
		Invites:       invites,
		EmailChange:   emailChange,
		Media:         mediaStore,
		Files:         files,
		Mailer:        mailer,
		InviteLimiter: inviteLimiter,
		Metrics:       m,
		Config:        cfg,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
