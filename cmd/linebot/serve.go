package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/linebot/internal/ai"
	"github.com/memohai/linebot/internal/command"
	"github.com/memohai/linebot/internal/config"
	"github.com/memohai/linebot/internal/dispatcher"
	"github.com/memohai/linebot/internal/handlers"
	"github.com/memohai/linebot/internal/healthcheck"
	collaboratorchecker "github.com/memohai/linebot/internal/healthcheck/checkers/collaborator"
	"github.com/memohai/linebot/internal/line"
	"github.com/memohai/linebot/internal/logger"
	"github.com/memohai/linebot/internal/media"
	"github.com/memohai/linebot/internal/onedrive"
	"github.com/memohai/linebot/internal/server"
	"github.com/memohai/linebot/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg config.Config) error {
	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideHTTPClient,
			provideLineClient,
			provideDriveClient,
			provideAssistant,
			provideMediaService,
			command.NewProcessor,
			provideDispatcher,
			provideServerHandler(handlers.NewWebhookHandler),
			provideServerHandler(provideHealthHandler),
			provideServerHandler(provideAdminHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(lc fx.Lifecycle, cfg config.Config) (*slog.Logger, error) {
	log, err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return logger.Close() }})
	return log, nil
}

func provideHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTP.Timeout}
}

func provideLineClient(log *slog.Logger, cfg config.Config, httpClient *http.Client) (*line.Client, error) {
	return line.NewClient(log, cfg.Line, httpClient)
}

func provideDriveClient(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, httpClient *http.Client) *onedrive.Client {
	client := onedrive.NewClient(log, cfg.Graph, cfg.OneDrive, httpClient)
	if !client.Configured() {
		log.Warn("microsoft graph credentials missing; uploads are disabled")
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { client.Cleanup(); return nil }})
	return client
}

func provideAssistant(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, httpClient *http.Client) *ai.Assistant {
	assistant := ai.NewAssistant(log, cfg.OpenAI, httpClient)
	if !assistant.Configured() {
		log.Warn("openai api key missing; receipt analysis is disabled")
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { assistant.Cleanup(); return nil }})
	return assistant
}

func provideMediaService(log *slog.Logger, cfg config.Config, drive *onedrive.Client) *media.Service {
	return media.NewService(log, drive.MediaStore(), media.Policy{
		MaxBytes:          cfg.Upload.MaxFileSize,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	})
}

func provideDispatcher(log *slog.Logger, cfg config.Config, lineClient *line.Client, commands *command.Processor, drive *onedrive.Client, mediaService *media.Service, assistant *ai.Assistant) (*dispatcher.Dispatcher, error) {
	deps := dispatcher.Deps{
		Replier:  lineClient,
		Commands: commands,
		Fetcher:  lineClient,
	}
	// Interfaces stay nil for missing collaborators so the dispatcher can skip them.
	if drive.Configured() {
		deps.Media = mediaService
	}
	if assistant.Configured() {
		deps.Analyzer = assistant
	}
	return dispatcher.New(log, dispatcher.Options{
		ChannelSecret: cfg.Line.ChannelSecret,
		Policy:        mediaService.Policy(),
		EventTimeout:  cfg.HTTP.EventTimeout,
		ReplyTimeout:  cfg.HTTP.Timeout,
	}, deps)
}

func provideHealthHandler(log *slog.Logger, cfg config.Config, drive *onedrive.Client, assistant *ai.Assistant) *handlers.HealthHandler {
	checkers := []healthcheck.Checker{
		collaboratorchecker.NewChecker(log, "line", "Messaging API", true, nil, 0),
		collaboratorchecker.NewChecker(log, "onedrive", cfg.OneDrive.RootFolder, drive.Configured(), func(ctx context.Context) error {
			_, err := drive.Authenticate(ctx)
			return err
		}, cfg.HTTP.Timeout),
		collaboratorchecker.NewChecker(log, "openai", cfg.OpenAI.Model, assistant.Configured(), nil, 0),
	}
	return handlers.NewHealthHandler(log, cfg.Service.Name, checkers...)
}

func provideAdminHandler(log *slog.Logger, cfg config.Config, drive *onedrive.Client, assistant *ai.Assistant) *handlers.AdminHandler {
	return handlers.NewAdminHandler(log, drive, assistant, cfg.Auth.SecretKey, cfg.Auth.TokenTTL())
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.ListenAddr(), params.Config.Auth.SecretKey, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting server",
				slog.String("service", cfg.Service.Name),
				slog.String("version", version.Info().String()),
				slog.String("addr", cfg.Server.ListenAddr()),
			)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
