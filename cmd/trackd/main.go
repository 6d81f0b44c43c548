package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/collabdocs/trackd/internal/cache"
	"github.com/collabdocs/trackd/internal/config"
	"github.com/collabdocs/trackd/internal/docservice"
	"github.com/collabdocs/trackd/internal/docstore"
	"github.com/collabdocs/trackd/internal/httpapi"
	"github.com/collabdocs/trackd/internal/logger"
	"github.com/collabdocs/trackd/internal/track"
)

func main() {
	configPath := flag.String("config", strings.TrimSpace(os.Getenv("TRACKD_CONFIG")), "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	store, err := docstore.NewManager(docstore.Options{Root: cfg.Storage.Root})
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}

	var tokens *docservice.TokenManager
	if cfg.Token.Enable {
		tokens, err = docservice.NewTokenManager(docservice.TokenOptions{
			Secret:       cfg.Token.Secret,
			Algorithm:    cfg.Token.Algorithm,
			ExpiresIn:    cfg.Token.ExpiresIn,
			Header:       cfg.Token.Header,
			HeaderPrefix: cfg.Token.HeaderPrefix,
		})
		if err != nil {
			log.Fatalf("failed to initialize token manager: %v", err)
		}
	}

	svc := docservice.NewClient(docservice.ClientOptions{
		SiteURL:       cfg.DocumentServer.SiteURL,
		ConverterPath: cfg.DocumentServer.ConverterPath,
		CommandPath:   cfg.DocumentServer.CommandPath,
		HTTPClient:    &http.Client{Timeout: cfg.DocumentServer.Timeout},
		Tokens:        tokens,
		PollInterval:  cfg.DocumentServer.PollInterval,
		MaxBodyBytes:  cfg.Files.MaxSize,
	})

	var eventCache cache.Cache
	switch strings.ToLower(cfg.Cache.Backend) {
	case "", "memory":
		eventCache = cache.NewMemory(cfg.Cache.TTL)
	case "redis":
		redisCache := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.TTL)
		defer redisCache.Close()
		eventCache = redisCache
	default:
		log.Fatalf("unsupported cache backend: %s", cfg.Cache.Backend)
	}

	var meta docstore.MetaBackend
	switch strings.ToLower(cfg.Meta.Backend) {
	case "", "filesystem":
		meta = docstore.NewFilesystemMetaBackend(store)
	case "postgres":
		pgMeta, err := docstore.NewPostgresMetaBackend(cfg.Meta.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to initialize postgres meta backend: %v", err)
		}
		defer pgMeta.Close()
		meta = pgMeta
	default:
		log.Fatalf("unsupported meta backend: %s", cfg.Meta.Backend)
	}

	hub := httpapi.NewHub()
	tracker := track.NewHandler(track.HandlerOptions{
		Store:   store,
		Service: svc,
		Cache:   eventCache,
		OnEvent: hub.Publish,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := docstore.NewWatcher(store, func(ev docstore.StorageEvent) {
		logger.Debug("storage: %s %s/%s", ev.Op, ev.Address, ev.FileName)
		hub.Publish(track.Notification{Address: ev.Address, FileName: ev.FileName, Op: ev.Op})
	})
	if err != nil {
		logger.Warn("storage watcher unavailable: %v", err)
	} else {
		go watcher.Run(rootCtx)
	}

	server := httpapi.NewServer(httpapi.ServerOptions{
		Store:           store,
		Service:         svc,
		Tracker:         tracker,
		Meta:            meta,
		Tokens:          tokens,
		TokenForRequest: cfg.Token.UseForRequest,
		Hub:             hub,
		PublicURL:       cfg.PublicURL,
		UploadExts:      append(append([]string{}, cfg.Files.Edited...), cfg.Files.Viewed...),
		ConvertedExts:   cfg.Files.Converted,
		MaxUploadBytes:  cfg.Files.MaxSize,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("trackd listening on %s, storage at %s", cfg.Listen, store.Root())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}
