package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/tv_overlay/internal/api"
	"github.com/dgnsrekt/tv_overlay/internal/cdprender"
	"github.com/dgnsrekt/tv_overlay/internal/chart"
	"github.com/dgnsrekt/tv_overlay/internal/config"
	"github.com/dgnsrekt/tv_overlay/internal/controller"
	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/journal"
	"github.com/dgnsrekt/tv_overlay/internal/metrics"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/relay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
	"github.com/dgnsrekt/tv_overlay/internal/undo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("overlayd config loaded",
		"bind_addr", cfg.BindAddr,
		"renderer", cfg.Renderer,
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout", cfg.EvalTimeout,
		"frame_interval", cfg.FrameInterval,
		"db_path", cfg.DBPath,
		"remote_store", cfg.RemoteURL != "",
		"journal_dir", cfg.JournalDir,
		"log_level", cfg.LogLevel,
	)

	styles, err := config.LoadStyles(cfg.StylesFile)
	if err != nil {
		slog.Error("failed to load styles", "path", cfg.StylesFile, "error", err)
		os.Exit(1)
	}

	store, legacy, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open layout store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Debug("layout store close failed", "error", err)
		}
	}()

	var actions undo.Journal
	if cfg.JournalDir != "" {
		w := journal.Open(cfg.JournalDir, "actions", journal.Options{})
		defer func() {
			if err := w.Close(); err != nil {
				slog.Debug("journal close failed", "error", err)
			}
		}()
		actions = w
	}

	r, closeRenderer, err := openRenderer(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open renderer", "renderer", cfg.Renderer, "error", err)
		os.Exit(1)
	}
	defer closeRenderer()

	m := metrics.New()
	broker := relay.NewBroker()
	loop := frame.NewLoop(cfg.FrameInterval)

	c := chart.New(chart.Config{
		Renderer:            r,
		Scheduler:           loop,
		PollInterval:        cfg.PollInterval,
		PendingApplyTimeout: cfg.PendingApplyTimeout,
		MaxHistory:          cfg.MaxHistory,
		HitPadding:          cfg.HitPadding,
		Precision:           int32(cfg.PricePrecision),
		SnapToBars:          cfg.SnapToBars,
		Styles:              styles,
		DefaultSymbol:       overlay.SymbolKey(cfg.DefaultSymbol),
		Store:               store,
		Journal:             actions,
		Broker:              broker,
		Metrics:             m,
	})
	svc := controller.NewService(c)

	// Ready registers templates over the wire; themes applied before it
	// finishes are held as pending.
	go func() {
		if err := svc.Ready(context.Background()); err != nil {
			slog.Error("chart not ready", "error", err)
			return
		}
		slog.Info("chart ready", "chart", c.Name())
	}()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.NewServer(svc, api.Options{Metrics: m.Handler(), Broker: broker, Legacy: legacy}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		slog.Info("overlayd listening", "addr", cfg.BindAddr, "docs", "http://"+cfg.BindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("overlayd server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Event streams only end when their request context does.
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("overlayd shutdown failed", "error", err)
	}
	if err := loop.Do(ctx, c.Dispose); err != nil {
		slog.Warn("chart dispose failed", "error", err)
	}
	loop.Close()
}

// openStore prefers the remote save API when configured. Only the local
// store carries legacy entries.
func openStore(cfg *config.Config) (savestore.Store, savestore.LegacySource, error) {
	if cfg.RemoteURL != "" {
		return savestore.NewRemoteStore(cfg.RemoteURL, cfg.RemoteToken, 10*time.Second), nil, nil
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	b, err := savestore.OpenBunt(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return b, b, nil
}

func openRenderer(ctx context.Context, cfg *config.Config) (renderer.Renderer, func(), error) {
	switch cfg.Renderer {
	case config.RendererCDP, config.RendererHeadless:
		cdpURL := cfg.CDPURL()
		closeBrowser := func() {}
		if cfg.Renderer == config.RendererHeadless {
			h, err := cdprender.LaunchHeadless(ctx, cdprender.HeadlessOptions{
				Address:  cfg.CDPAddress,
				Port:     cfg.CDPPort,
				ChartURL: cfg.ChartURL,
			})
			if err != nil {
				return nil, nil, err
			}
			cdpURL = h.CDPURL
			closeBrowser = h.Close
		}
		client := cdprender.New(cdprender.Config{
			CDPURL:      cdpURL,
			TabFilter:   cfg.TabURLFilter,
			EvalTimeout: cfg.EvalTimeout,
		})
		if err := client.Connect(ctx); err != nil {
			closeBrowser()
			return nil, nil, err
		}
		return client, func() {
			if err := client.Close(); err != nil {
				slog.Debug("CDP client close failed", "error", err)
			}
			closeBrowser()
		}, nil
	default:
		now := time.Now().UnixMilli()
		v := renderer.NewVirtual(renderer.Size{Width: 1280, Height: 720}, renderer.Viewport{
			FromTime: now - int64(24*time.Hour/time.Millisecond),
			ToTime:   now,
			MinPrice: 0,
			MaxPrice: 100,
		})
		return v, func() {}, nil
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
