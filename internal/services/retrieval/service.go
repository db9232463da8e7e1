package retrieval

import (
    "context"
    "strings"
)

// Service answers "which documents are relevant to this query" for a
// company's index.
type Service struct {
    embedder Embedder
    querier  VectorQuerier
    retry    *RetryService
    config   *Config
    logger   Logger
}

func NewService(embedder Embedder, querier VectorQuerier, config *Config, logger Logger) *Service {
    return &Service{
        embedder: embedder,
        querier:  querier,
        retry:    NewRetryService(config, logger),
        config:   config,
        logger:   logger,
    }
}

// Search embeds query and returns the matches above the configured score,
// best first. An empty indexName means the company has no documents.
func (s *Service) Search(ctx context.Context, indexName, query string) ([]Document, error) {
    query = strings.TrimSpace(query)
    if indexName == "" || query == "" {
        return nil, nil
    }

    var vector []float32
    err := s.retry.RetryWithTimeout(ctx, func(ctx context.Context) error {
        var err error
        vector, err = s.embedder.CreateEmbedding(ctx, query)
        return err
    })
    if err != nil {
        return nil, NewEmbeddingError("failed to embed query", err)
    }

    var docs []Document
    err = s.retry.RetryWithTimeout(ctx, func(ctx context.Context) error {
        var err error
        docs, err = s.querier.Query(ctx, indexName, vector, s.config.TopK)
        return err
    })
    if err != nil {
        return nil, err
    }

    kept := docs[:0]
    for _, d := range docs {
        if d.Score < s.config.MinScore || strings.TrimSpace(d.Text) == "" {
            continue
        }
        kept = append(kept, d)
    }

    s.logger.Debug("retrieval completed", "index", indexName, "matches", len(docs), "kept", len(kept))
    return kept, nil
}

// FormatContext joins documents into a prompt section, stopping before the
// configured character budget is exceeded.
func (s *Service) FormatContext(docs []Document) string {
    var b strings.Builder
    for i, d := range docs {
        entry := strings.TrimSpace(d.Text)
        if d.Source != "" {
            entry = "[" + d.Source + "] " + entry
        }
        if s.config.MaxContextChars > 0 && b.Len()+len(entry) > s.config.MaxContextChars {
            break
        }
        if i > 0 {
            b.WriteString("\n\n---\n\n")
        }
        b.WriteString(entry)
    }
    return b.String()
}
