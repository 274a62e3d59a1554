package main

import (
	"context"
	"io/fs"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/keithlinneman/siteedge/internal/cfg"
	"github.com/keithlinneman/siteedge/internal/content"
	"github.com/keithlinneman/siteedge/internal/cryptoutil"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/metrics"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// contentSetup wires the configured content source into mgr. The returned
// run func (nil when updates are off) blocks until ctx is done.
type contentSetup struct {
	L          log.Logger
	conf       cfg.App
	mgr        *content.Manager
	m          *metrics.ServerMetrics
	validation content.ValidationOptions
	seedFS     fs.FS
	haveSeed   bool
}

func (s contentSetup) publishMetrics(meta content.Meta, loadedAt time.Time) {
	s.m.SetContentSource(string(meta.Source))
	s.m.SetContentBundle(meta.SHA256)
	if !loadedAt.IsZero() {
		s.m.SetContentLoadedTimestamp(loadedAt)
	}
}

// loadSeed publishes the embedded seed site, if the binary carries one.
func (s contentSetup) loadSeed(ctx context.Context) {
	if !s.haveSeed {
		s.L.Info(ctx, "no seed site content embedded")
		return
	}
	snap, err := content.SeedSnapshot(s.seedFS)
	if err == nil {
		err = content.ValidateSnapshot(snap, s.validation)
	}
	if err != nil {
		s.L.Error(ctx, err, "embedded seed content rejected")
		return
	}
	s.mgr.Set(*snap)
	s.publishMetrics(snap.Meta, s.mgr.LoadedAt())
	s.L.Info(ctx, "loaded seed site content", "content_version", snap.Meta.Version)
}

func (s contentSetup) start(ctx context.Context) (func(context.Context), error) {
	switch s.conf.ContentSource {
	case cfg.ContentS3:
		s.loadSeed(ctx)
		return s.startS3(ctx)
	case cfg.ContentDir:
		return s.startDir(ctx)
	default:
		s.loadSeed(ctx)
		return nil, nil
	}
}

func (s contentSetup) startS3(ctx context.Context) (func(context.Context), error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}

	var verifier cryptoutil.Verifier
	if s.conf.ContentSigningKeyARN != "" {
		verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), s.conf.ContentSigningKeyARN)
	}

	loader, err := content.NewLoader(ctx, content.LoaderOptions{
		Logger:           s.L,
		SSMParam:         s.conf.ContentSSMParam,
		S3Bucket:         s.conf.ContentS3Bucket,
		S3Prefix:         s.conf.ContentS3Prefix,
		Verifier:         verifier,
		RequireSignature: s.conf.RequireSignature,
		AWSConfig:        &awsCfg,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "create content loader")
	}

	// a failed first load keeps the seed (or maintenance) up; the watcher retries
	if snap, err := loader.Load(ctx); err != nil {
		s.L.Error(ctx, err, "initial content bundle load failed, serving seed")
	} else if err := content.ValidateSnapshot(snap, s.validation); err != nil {
		s.L.Error(ctx, err, "initial content bundle rejected, serving seed", "content_hash", snap.Meta.SHA256)
	} else {
		s.mgr.Set(*snap)
		s.publishMetrics(snap.Meta, s.mgr.LoadedAt())
		s.L.Info(ctx, "loaded content bundle from s3",
			"content_version", snap.Meta.Version,
			"content_hash", snap.Meta.SHA256,
			"signed_by", snap.Meta.SignedBy,
		)
	}

	if !s.conf.EnableContentUpdates {
		return nil, nil
	}
	validation := s.validation
	watcher, err := content.NewWatcher(content.WatcherOptions{
		Logger:       s.L,
		Fetcher:      loader,
		Manager:      s.mgr,
		Metrics:      s.m,
		PollInterval: s.conf.ContentPollInterval,
		Validation:   &validation,
		OnSwap: func(meta content.Meta) {
			s.publishMetrics(meta, s.mgr.LoadedAt())
		},
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "create content watcher")
	}
	return func(ctx context.Context) {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			s.L.Error(ctx, err, "content watcher stopped")
		}
	}, nil
}

func (s contentSetup) startDir(ctx context.Context) (func(context.Context), error) {
	validation := s.validation
	src, err := content.NewDirSource(content.DirSourceOptions{
		Logger:     s.L,
		Dir:        s.conf.ContentDir,
		Manager:    s.mgr,
		Metrics:    s.m,
		Validation: &validation,
		OnReload: func(meta content.Meta) {
			s.publishMetrics(meta, s.mgr.LoadedAt())
		},
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "create directory content source")
	}
	// a failed first load serves maintenance until a file change fixes it
	_ = src.Reload(ctx)

	if !s.conf.EnableContentUpdates {
		return nil, nil
	}
	return func(ctx context.Context) {
		if err := src.Run(ctx); err != nil && ctx.Err() == nil {
			s.L.Error(ctx, err, "directory watcher stopped", "dir", s.conf.ContentDir)
		}
	}, nil
}
