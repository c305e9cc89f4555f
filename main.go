package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pixelchat/config"
	"pixelchat/crypto"
	"pixelchat/imagehost"
	"pixelchat/imagehost/freehost"
	"pixelchat/imagehost/miniohost"
	"pixelchat/pixel"
	"pixelchat/protocol"
	"pixelchat/reconcile"
	"pixelchat/storage"
)

func main() {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	identity, err := crypto.EnsureIdentity(cfg.IdentityPath)
	if err != nil {
		log.Fatalf("startup failed while preparing identity: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fmt.Printf("User ID:         %s\n", identity.UserID)
	fmt.Printf("User Name:       %s\n", cfg.UserName)
	fmt.Printf("Backend:         %s\n", cfg.Backend)
	fmt.Printf("Search Tag:      %s\n", cfg.SearchTag)
	fmt.Printf("Config File:     %s\n", cfgPath)
	dataDir := filepath.Dir(cfgPath)
	fmt.Printf("Data Directory:  %s\n", dataDir)

	local, dbPath, err := storage.Open(dataDir)
	if err != nil {
		log.Fatalf("startup failed while opening database: %v", err)
	}
	defer func() {
		if err := local.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()
	fmt.Printf("Database File:   %s\n", dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host, err := buildHost(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed while connecting image host: %v", err)
	}

	store := imagehost.NewStore(host, pixel.NewCodec(cfg.SearchTag),
		imagehost.WithLogger(logger),
		imagehost.WithRetry(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		}),
	)

	backend := protocol.NewBackend(store, protocol.WithLogger(logger))

	client := reconcile.New(backend, local, identity,
		reconcile.WithLogger(logger),
		reconcile.WithPollInterval(time.Duration(cfg.PollIntervalSeconds)*time.Second),
		reconcile.WithProfile(cfg.UserName, cfg.ProfileImage),
	)

	if err := client.Register(ctx); err != nil {
		log.Printf("key registration failed, retrying on next poll: %v", err)
	}

	fmt.Println("Status:          running (press Ctrl+C to stop)")
	client.Run(ctx)
	fmt.Println("Status:          shutting down")
}

func buildHost(ctx context.Context, cfg *config.ClientConfig) (imagehost.Host, error) {
	if cfg.Backend == config.BackendMinio {
		client, err := miniohost.New(miniohost.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		}, cfg.SearchTag)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}

	return freehost.New(cfg.HostBaseURL, cfg.SearchTag), nil
}
