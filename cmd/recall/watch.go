package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/recall/internal/ingest"
)

// excludedPrefixes are bucket areas the watcher never touches.
var excludedPrefixes = []string{"env_config/", "lucius/", "devision/", "alfred/"}

// shouldProcessKey decides whether a bucket object is ingestable:
// conversation transcripts and uploaded documents, but never the index
// and analysis objects the service writes itself.
func shouldProcessKey(key string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return false
		}
	}
	if strings.HasSuffix(key, "analysis.json") || strings.HasSuffix(key, "embeddings.json") {
		return false
	}
	return strings.HasSuffix(key, "messages.json") || strings.Contains(key, "/uploads/")
}

func runWatch(cmd *cobra.Command, configPath string, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(requestContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error(ctx, "metrics server failed", "addr", addr, "error", err)
			}
		}()
		defer server.Close()
		a.logger.Info(ctx, "metrics endpoint up", "addr", addr)
	}

	a.logger.Info(ctx, "watching bucket", "interval", interval.String())

	seen := make(map[string]struct{})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.sweep(ctx, seen)
		select {
		case <-ctx.Done():
			a.logger.Info(ctx, "watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// sweep lists the bucket and ingests keys not handled before. Per-key
// failures are logged and retried on the next sweep.
func (a *app) sweep(ctx context.Context, seen map[string]struct{}) {
	keys, err := a.blob.List(ctx, "")
	if err != nil {
		a.logger.Warn(ctx, "bucket listing failed", "error", err)
		return
	}

	for _, key := range keys {
		if _, done := seen[key]; done {
			continue
		}
		if !shouldProcessKey(key) {
			seen[key] = struct{}{}
			continue
		}
		if err := a.ingestKey(ctx, key); err != nil {
			a.logger.Warn(ctx, "object ingestion failed", "key", key, "error", err)
			continue
		}
		seen[key] = struct{}{}
	}
}

func (a *app) ingestKey(ctx context.Context, key string) error {
	obj, err := a.blob.Get(ctx, key)
	if err != nil {
		return err
	}

	if strings.HasSuffix(key, "messages.json") {
		username, conversationID, err := transcriptIdentity(key)
		if err != nil {
			return err
		}
		var messages []ingest.Message
		if err := json.Unmarshal(obj.Data, &messages); err != nil {
			return fmt.Errorf("parse transcript %q: %w", key, err)
		}
		_, err = a.pipeline.IngestTranscript(ctx, username, conversationID, messages)
		return err
	}

	_, err = a.pipeline.IngestDocument(ctx, key, string(obj.Data))
	return err
}

// transcriptIdentity extracts the owner and conversation from a
// transcript key shaped username/conversation/messages.json.
func transcriptIdentity(key string) (string, string, error) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("transcript key %q lacks username/conversation structure", key)
	}
	return parts[0], parts[1], nil
}
