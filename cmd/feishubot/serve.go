package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ie2718/clawdbot-feishu/internal/access"
	"github.com/ie2718/clawdbot-feishu/internal/config"
	"github.com/ie2718/clawdbot-feishu/internal/feishu"
	"github.com/ie2718/clawdbot-feishu/internal/gateway"
	"github.com/ie2718/clawdbot-feishu/internal/logger"
	"github.com/ie2718/clawdbot-feishu/internal/pipeline"
	"github.com/ie2718/clawdbot-feishu/internal/reply"
	"github.com/ie2718/clawdbot-feishu/internal/status"
	"github.com/ie2718/clawdbot-feishu/internal/store"
	"github.com/ie2718/clawdbot-feishu/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect the configured accounts and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideRegistry,
			provideStatusSink,
			provideDB,
			store.NewPairingStore,
			store.NewSessionStore,
			provideGatewayClient,
			provideAccountRuntimes,
		),
		fx.Invoke(
			startMonitors,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return config.Config{}, errors.New("no accounts configured")
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideStatusSink(reg *prometheus.Registry) *status.Sink {
	return status.NewSink(reg)
}

func provideDB(lc fx.Lifecycle, cfg config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return db.Close() }})
	return db, nil
}

func provideGatewayClient(cfg config.Config, log *slog.Logger) *gateway.Client {
	return gateway.NewClient(cfg.Gateway, log)
}

// accountRuntime bundles one configured account with its monitor.
type accountRuntime struct {
	account config.Account
	monitor *pipeline.Monitor
}

func provideAccountRuntimes(
	cfg config.Config,
	log *slog.Logger,
	pairings *store.PairingStore,
	sessions *store.SessionStore,
	sink *status.Sink,
	agent *gateway.Client,
) []accountRuntime {
	runtimes := make([]accountRuntime, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		client := feishu.NewClient(account.AppID, account.AppSecret,
			feishu.WithRegion(account.Region),
			feishu.WithLogger(log),
		)
		botOpenID, botName := resolveBotIdentity(client, account.ID, log)
		accountID := account.ID
		engine := reply.NewEngine(client, account.TableMode,
			reply.WithLogger(log),
			reply.WithTransmitHook(func() { sink.MarkOutbound(accountID) }),
		)
		p := pipeline.New(pipeline.Deps{
			Account:   account,
			Evaluator: access.NewEvaluator(account, pairings, botOpenID, botName, log),
			Resolver:  gateway.StaticResolver{},
			Sessions:  sessions,
			Commands:  gateway.SlashCommands{},
			Agent:     agent,
			Engine:    engine,
			Sink:      sink,
			Media:     client,
			Logger:    log,
		})
		runtimes = append(runtimes, accountRuntime{
			account: account,
			monitor: pipeline.NewMonitor(account, p, log),
		})
	}
	return runtimes
}

// resolveBotIdentity fetches the bot's own open id and name for the group
// mention gate. Failure degrades the gate, it does not block startup.
func resolveBotIdentity(client *feishu.Client, accountID string, log *slog.Logger) (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := client.GetBotInfo(ctx)
	if err != nil {
		log.Warn("resolving bot identity failed",
			slog.String("account", accountID), slog.Any("error", err))
		return "", ""
	}
	log.Info("bot identity",
		slog.String("account", accountID),
		slog.String("bot_open_id", info.OpenID),
		slog.String("bot_name", info.AppName))
	return info.OpenID, info.AppName
}

func startMonitors(lc fx.Lifecycle, runtimes []accountRuntime, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, rt := range runtimes {
				if rt.account.InboundMode != config.InboundModeWebsocket {
					continue
				}
				log.Info("starting event connection", slog.String("account", rt.account.ID))
				rt.monitor.Start(context.Background())
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			for _, rt := range runtimes {
				rt.monitor.Stop()
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, cfg config.Config, runtimes []accountRuntime, reg *prometheus.Registry, sink *status.Sink, log *slog.Logger) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	serverCtx, cancel := context.WithCancel(context.Background())
	var endpoints []webhook.Endpoint
	for _, rt := range runtimes {
		if rt.account.InboundMode != config.InboundModeWebhook {
			continue
		}
		endpoints = append(endpoints, webhook.Endpoint{
			Account:    rt.account,
			Dispatcher: rt.monitor.EventDispatcher(serverCtx),
		})
	}
	webhook.NewHandler(log, endpoints).Register(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		type accountStatus struct {
			Account      string    `json:"account"`
			LastInbound  time.Time `json:"last_inbound"`
			LastOutbound time.Time `json:"last_outbound"`
		}
		statuses := make([]accountStatus, 0, len(runtimes))
		for _, rt := range runtimes {
			statuses = append(statuses, accountStatus{
				Account:      rt.account.ID,
				LastInbound:  sink.LastInbound(rt.account.ID),
				LastOutbound: sink.LastOutbound(rt.account.ID),
			})
		}
		return c.JSON(http.StatusOK, statuses)
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return e.Shutdown(ctx)
		},
	})
}
