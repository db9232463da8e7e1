package retrieval

import "context"

// Document is one retrieved passage.
type Document struct {
    ID     string
    Score  float32
    Text   string
    Source string
}

// Embedder turns a query into a vector.
type Embedder interface {
    CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorQuerier runs a similarity query in one namespace.
type VectorQuerier interface {
    Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Document, error)
}

// Logger interface for retrieval operations
type Logger interface {
    Info(msg string, keysAndValues ...interface{})
    Error(msg string, keysAndValues ...interface{})
    Debug(msg string, keysAndValues ...interface{})
    Warn(msg string, keysAndValues ...interface{})
}
