package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kalambet/visnote/internal/archive"
	"github.com/kalambet/visnote/internal/config"
	"github.com/kalambet/visnote/internal/inference"
	"github.com/kalambet/visnote/internal/ollama"
	"github.com/kalambet/visnote/internal/proxy"
)

// openArchive builds the configured archive backend and its authorizer.
func openArchive(ctx context.Context, cfg config.Config) (*archive.Archive, error) {
	var (
		backend archive.Backend
		err     error
	)
	switch cfg.Archive.Backend {
	case "sqlite":
		backend, err = archive.OpenSQLite(cfg.Storage.DataDir)
	case "redis":
		backend, err = archive.NewRedis(cfg.Redis.URL)
	case "s3":
		backend, err = archive.NewS3(ctx, archive.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})
	case "postgres":
		backend, err = archive.OpenPostgres(ctx, cfg.Postgres.URL)
	case "memory":
		backend = archive.NewMemory()
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s archive: %w", cfg.Archive.Backend, err)
	}

	auth, err := archiveAuthorizer(cfg.Archive)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return archive.New(backend, archive.Options{
		Name:       cfg.Archive.Name,
		MaxBytes:   cfg.Archive.MaxBytes,
		Authorizer: auth,
	}), nil
}

// archiveAuthorizer prefers a stored bcrypt hash over a plain token. With
// neither, every archive call is refused.
func archiveAuthorizer(c config.ArchiveConfig) (archive.Authorizer, error) {
	switch {
	case c.TokenHash != "":
		a, err := archive.NewHashAuthorizer(c.TokenHash)
		if err != nil {
			return nil, fmt.Errorf("archive.token_hash: %w", err)
		}
		return a, nil
	case c.Token != "":
		return archive.NewTokenAuthorizer(c.Token), nil
	default:
		slog.Warn("no archive token configured; notes will not be saved")
		return nil, nil
	}
}

// readyFunc prepares an inference backend before the first request.
type readyFunc func(ctx context.Context, w io.Writer) error

// newInference builds the configured inference backend.
func newInference(cfg config.Config) (inference.Service, readyFunc, error) {
	timeout, err := cfg.InferenceTimeout()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Inference.Backend {
	case "ollama":
		svc := inference.NewOllama(ollama.New(cfg.Ollama.BaseURL), cfg.Ollama.VisionModel, cfg.Ollama.TextModel, timeout)
		return svc, svc.EnsureReady, nil
	case "openrouter":
		svc := inference.NewOpenRouter(proxy.NewClient(cfg.Proxy.OpenRouterAPIKey), cfg.Proxy.VisionModel, cfg.Proxy.TextModel, timeout)
		return svc, func(context.Context, io.Writer) error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown inference backend %q", cfg.Inference.Backend)
	}
}
