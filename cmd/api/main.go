package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/config"
	"github.com/zhouzirui/toddler-chat/backend/internal/handler"
	"github.com/zhouzirui/toddler-chat/backend/internal/logger"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/random"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/ads"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/ai"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/events"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/imagegen"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/speech"
	"github.com/zhouzirui/toddler-chat/backend/internal/storage/kv"
)

func main() {
	if err := run(); err != nil {
		log.Printf("toddler chat backend stopped: %v", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until shutdown. Deferred cleanup runs
// before main decides the exit code.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Encoding:   cfg.Log.Encoding,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()

	if envErr != nil {
		appLogger.Warn("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	store, closeStore := newStore(ctx, cfg.Redis, appLogger)
	defer closeStore()

	text, closeText := newTextGenerator(ctx, cfg.AI, appLogger)
	defer closeText()

	var images imagegen.Generator
	if cfg.Image.Enabled() {
		svc, err := imagegen.NewOpenAIService(cfg.Image, appLogger)
		if err != nil {
			appLogger.Warn("image generation disabled", zap.Error(err))
		} else {
			images = svc
			appLogger.Info("image generation enabled", zap.String("model", cfg.Image.Model))
		}
	} else {
		appLogger.Info("IMAGE_API_KEY 未配置，消息将不带图片")
	}

	hub := events.NewHub(appLogger)

	transcriber := newTranscriber(cfg.Speech, appLogger)
	speechSvc := speech.NewService(transcriber, hub, appLogger)

	personaStore := persona.NewMemoryStore(persona.Seed())
	dialogueSvc := dialogue.NewService(dialogue.Deps{
		Chat:      chat.NewService(),
		Personas:  personaStore,
		Text:      text,
		Images:    images,
		Voice:     speechSvc,
		Events:    hub,
		Store:     store,
		NewRandom: randomSource(cfg.RandomSeed),
		Ads: ads.Config{
			Tick:          cfg.Ads.Tick,
			Interval:      cfg.Ads.Interval,
			TurnThreshold: cfg.Ads.TurnThreshold,
		},
		IdleTimeout:   cfg.Session.IdleTimeout,
		SweepInterval: cfg.Session.SweepInterval,
		Logger:        appLogger,
	})
	defer dialogueSvc.Close()

	router := handler.NewRouter(handler.Services{
		Personas: personaStore,
		Dialogue: dialogueSvc,
		Events:   hub,
		Speech:   speechSvc,
		Logger:   appLogger,
	})

	if err := startServer(ctx, cfg.Server, router, appLogger); err != nil {
		appLogger.Error("server error", zap.Error(err))
		return err
	}
	return nil
}

// newTranscriber picks the recognition backend named by SPEECH_PROVIDER.
// A nil Transcriber leaves voice input disabled.
func newTranscriber(cfg config.SpeechConfig, logger *zap.Logger) speech.Transcriber {
	if !cfg.Enabled() {
		if cfg.Provider == config.SpeechProviderVolcengine {
			logger.Info("VOLC_APP_ID 或 VOLC_ACCESS_TOKEN 未配置，跳过语音识别初始化")
		} else {
			logger.Info("SPEECH_API_KEY 未配置，跳过语音识别初始化")
		}
		return nil
	}

	switch cfg.Provider {
	case config.SpeechProviderVolcengine:
		client, err := speech.NewVolcengineASRClient(cfg, logger)
		if err != nil {
			logger.Warn("speech recognition disabled", zap.Error(err))
			return nil
		}
		logger.Info("speech recognition enabled", zap.String("provider", cfg.Provider), zap.String("url", cfg.Volcengine.URL))
		return client
	default:
		client, err := speech.NewWhisperClient(cfg)
		if err != nil {
			logger.Warn("speech recognition disabled", zap.Error(err))
			return nil
		}
		logger.Info("speech recognition enabled", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
		return client
	}
}

// newStore connects to Redis when configured and falls back to memory.
func newStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (kv.Store, func()) {
	if !cfg.Enabled() {
		logger.Info("REDIS_URL 未配置，进度仅保存在内存中")
		return kv.NewMemoryStore(), func() {}
	}
	client, err := kv.NewRedisClient(ctx, cfg.URL)
	if err != nil {
		logger.Warn("redis unavailable, keeping progress in memory", zap.Error(err))
		return kv.NewMemoryStore(), func() {}
	}
	logger.Info("progress persisted to redis")
	store := kv.NewRedisStore(client, logger)
	return store, func() { _ = store.Close() }
}

// newTextGenerator builds the configured child-reply backend. A nil
// generator makes every reply the fallback line.
func newTextGenerator(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (ai.Generator, func()) {
	if !cfg.Enabled() {
		logger.Warn("text generation not configured, replies use the fallback line", zap.String("provider", cfg.Provider))
		return nil, func() {}
	}

	switch cfg.Provider {
	case config.ProviderArk:
		svc, err := ai.NewArkService(ctx, cfg.Ark, logger)
		if err != nil {
			logger.Warn("failed to initialize ark service", zap.Error(err))
			return nil, func() {}
		}
		logger.Info("text generation via ark", zap.String("model", cfg.Ark.Model))
		return svc, func() {}
	default:
		svc, err := ai.NewGeminiService(ctx, cfg.Gemini, logger)
		if err != nil {
			logger.Warn("failed to initialize gemini service", zap.Error(err))
			return nil, func() {}
		}
		logger.Info("text generation via gemini", zap.String("model", cfg.Gemini.Model))
		return svc, func() { _ = svc.Close() }
	}
}

func randomSource(seed uint64) func() random.Source {
	if seed == 0 {
		return random.NewTimeSeeded
	}
	var n atomic.Uint64
	return func() random.Source {
		return random.New(seed + n.Add(1))
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("toddler chat backend listening", zap.String("addr", addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
