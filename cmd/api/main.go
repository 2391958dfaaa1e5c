package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/marsdhp/sme-interview/backend/internal/audiocache"
	"github.com/marsdhp/sme-interview/backend/internal/config"
	"github.com/marsdhp/sme-interview/backend/internal/handler"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
	"github.com/marsdhp/sme-interview/backend/internal/service/ai"
	interviewService "github.com/marsdhp/sme-interview/backend/internal/service/interview"
	"github.com/marsdhp/sme-interview/backend/internal/service/tts"
	"github.com/marsdhp/sme-interview/backend/internal/store"
	"github.com/marsdhp/sme-interview/backend/internal/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Getenv("LOG_FORMAT") == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Warn("no .env file loaded, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Paths.EnsureDirectories(); err != nil {
		logrus.WithError(err).Fatal("failed to prepare data directories")
	}

	db, err := store.Open(cfg.Paths.DatabasePath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	tokens, err := token.Open(cfg.Paths.TokensFile)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open token store")
	}
	if cfg.Auth.Required && len(tokens.List()) == 0 {
		logrus.Warn("auth is required but no tokens exist, create one with the tokenadmin tool")
	}

	var aiSvc *ai.Service
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			logrus.WithError(err).Warn("AI service unavailable, sessions will use template greetings and turns will fail")
		} else {
			logrus.Info("AI service initialized")
		}
	} else {
		logrus.Warn("model credentials not configured, AI features disabled")
	}

	var synth provider.Synthesizer
	if cfg.TTS.Enabled {
		synth = tts.NewClient(cfg.TTS)
		logrus.Info("speech synthesis initialized")
	} else {
		logrus.Warn("synthesis credentials not configured, responses will be text only")
	}

	audioCache, err := audiocache.New(cfg.Paths.AudioCacheDir, synth)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open audio cache")
	}

	var completer provider.Completer
	var extractor *interviewService.Extractor
	if aiSvc != nil {
		completer = aiSvc
		extractor = interviewService.NewExtractor(aiSvc, db, cfg.Interview.ProviderTimeout)
	}

	engine := interviewService.NewEngine(db, completer, extractor, audioCache, interviewService.Config{
		MaxWindow:          cfg.Interview.MaxContextMessages,
		ExtractionInterval: cfg.Interview.ExtractionInterval,
		ProviderTimeout:    cfg.Interview.ProviderTimeout,
		DefaultVoice:       cfg.Interview.DefaultVoice,
		DefaultSpeechRate:  cfg.Interview.DefaultSpeechRate,
		InputTokenCost:     cfg.Interview.InputTokenCost,
		OutputTokenCost:    cfg.Interview.OutputTokenCost,
	})
	defer engine.Close()

	router := handler.NewRouter(engine, db, tokens, audioCache, cfg.Auth.Required)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logrus.WithField("addr", serverCfg.Addr).Info("interview backend listening")
	if err := runServer(ctx, srv); err != nil {
		logrus.WithError(err).Fatal("server error")
	}
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
