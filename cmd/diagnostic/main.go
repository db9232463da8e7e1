// File: cmd/diagnostic/main.go
//
// diagnostic measures the external dependencies of a turn: time to first
// token from the model stream and embedding plus Pinecone query latency.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/iyunix/go-chatwidget/internal/app"
	"github.com/iyunix/go-chatwidget/internal/config"
	"github.com/iyunix/go-chatwidget/internal/services"
	"github.com/iyunix/go-chatwidget/internal/services/ai"
	"github.com/iyunix/go-chatwidget/internal/services/chat"
	"github.com/iyunix/go-chatwidget/internal/services/modelstream"
	"github.com/iyunix/go-chatwidget/internal/services/retrieval"
)

func main() {
	namespace := flag.String("namespace", "", "Pinecone namespace (company index name) to query")
	query := flag.String("query", "What are your opening hours?", "test question")
	runs := flag.Int("runs", 5, "number of retrieval queries")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: configuration: %v", err)
	}
	logger := services.NewProductionLogger("diagnostic", log.Writer(), services.LogLevelWarn, false)
	provider := ai.NewOpenAIProvider(app.ProvideAIConfig(cfg), logger)

	log.Println("--- Model stream ---")
	var streamer chat.ModelStreamer = provider
	if cfg.ModelAPI == "responses" {
		streamer = modelstream.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, &http.Client{}, logger)
	}
	checkStream(streamer, cfg.ChatModel, *query)

	if *namespace == "" {
		log.Println("Skipping retrieval: -namespace not set")
		return
	}
	log.Println("--- Retrieval ---")
	checkRetrieval(cfg, provider, logger, *namespace, *query, *runs)
}

func checkStream(streamer chat.ModelStreamer, model, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	start := time.Now()
	var firstToken time.Duration
	var reply strings.Builder
	err := streamer.Stream(ctx, modelstream.Request{
		Model:  model,
		Input:  []modelstream.InputMessage{{Role: "user", Content: query}},
		Stream: true,
	}, func(ev modelstream.Event) error {
		if delta, ok := ev.(modelstream.OutputTextDelta); ok {
			if firstToken == 0 {
				firstToken = time.Since(start)
			}
			reply.WriteString(delta.Delta)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Stream failed after %s: %v", time.Since(start), err)
	}
	log.Printf("[TIMING] first token: %s, total: %s, %d chars", firstToken, time.Since(start), reply.Len())
}

func checkRetrieval(cfg *config.Config, embedder retrieval.Embedder, logger services.Logger, namespace, query string, runs int) {
	rc := app.ProvideRetrievalConfig(cfg)
	querier, err := retrieval.NewPineconeQuerier(rc, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Pinecone: %v", err)
	}
	defer querier.Close()

	ctx := context.Background()
	start := time.Now()
	vector, err := embedder.CreateEmbedding(ctx, query)
	if err != nil {
		log.Fatalf("FATAL: Failed to create embedding: %v", err)
	}
	log.Printf("[TIMING] embedding: %s (%d dims)", time.Since(start), len(vector))

	var total time.Duration
	ok := 0
	for i := 1; i <= runs; i++ {
		start := time.Now()
		docs, err := querier.Query(ctx, namespace, vector, rc.TopK)
		if err != nil {
			log.Printf("ERROR: query #%d failed: %v", i, err)
			continue
		}
		d := time.Since(start)
		total += d
		ok++
		log.Printf("[TIMING] query #%d: %s, %d matches", i, d, len(docs))
	}
	if ok > 0 {
		log.Printf("[TIMING] average query: %s", total/time.Duration(ok))
	}
}
