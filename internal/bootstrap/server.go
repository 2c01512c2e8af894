package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/ariavoice/streamkit/internal/devserver"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	return e
}

func ProvideHandler(cfg *Config, log *slog.Logger) *devserver.Handler {
	return devserver.NewHandler(devserver.Config{
		APIKey:          cfg.APIKey,
		SampleRate:      cfg.SampleRate,
		Channels:        cfg.Channels,
		SegmentBytes:    cfg.SegmentBytes,
		SegmentDelay:    cfg.SegmentDelay,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
	}, log)
}

func RegisterRoutes(e *echo.Echo, h *devserver.Handler) {
	h.Register(e)
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("dev server listening", "addr", cfg.ServerAddr)
				if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewLogger),
	fx.Provide(NewEchoServer),
	fx.Provide(ProvideHandler),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(StartServer),
)

func Run() {
	fx.New(
		fx.Provide(LoadConfig),
		ServerModule,
	).Run()
}
