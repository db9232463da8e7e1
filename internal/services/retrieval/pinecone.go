package retrieval

import (
    "context"
    "sync"

    pineconeSDK "github.com/pinecone-io/go-pinecone/v4/pinecone"
    "google.golang.org/protobuf/types/known/structpb"
)

// PineconeQuerier queries a Pinecone index, one connection per namespace.
type PineconeQuerier struct {
    client    *pineconeSDK.Client
    indexHost string
    textKey   string
    logger    Logger

    mu    sync.Mutex
    conns map[string]*pineconeSDK.IndexConnection
}

func NewPineconeQuerier(config *Config, logger Logger) (*PineconeQuerier, error) {
    if err := config.Validate(); err != nil {
        return nil, NewConfigError(err.Error())
    }

    client, err := pineconeSDK.NewClient(pineconeSDK.NewClientParams{ApiKey: config.APIKey})
    if err != nil {
        return nil, NewOperationError("failed to create pinecone client", err)
    }

    logger.Info("Pinecone client initialized", "host", config.IndexHost)
    return &PineconeQuerier{
        client:    client,
        indexHost: config.IndexHost,
        textKey:   config.MetadataTextKey,
        logger:    logger,
        conns:     make(map[string]*pineconeSDK.IndexConnection),
    }, nil
}

func (p *PineconeQuerier) connection(namespace string) (*pineconeSDK.IndexConnection, error) {
    p.mu.Lock()
    defer p.mu.Unlock()

    if conn, ok := p.conns[namespace]; ok {
        return conn, nil
    }
    conn, err := p.client.Index(pineconeSDK.NewIndexConnParams{Host: p.indexHost, Namespace: namespace})
    if err != nil {
        return nil, NewOperationError("failed to connect to index", err)
    }
    p.conns[namespace] = conn
    return conn, nil
}

func (p *PineconeQuerier) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Document, error) {
    conn, err := p.connection(namespace)
    if err != nil {
        return nil, err
    }

    res, err := conn.QueryByVectorValues(ctx, &pineconeSDK.QueryByVectorValuesRequest{
        Vector:          vector,
        TopK:            uint32(topK),
        IncludeMetadata: true,
    })
    if err != nil {
        return nil, NewOperationError("similarity search failed", err)
    }

    docs := make([]Document, 0, len(res.Matches))
    for _, m := range res.Matches {
        if m == nil || m.Vector == nil {
            continue
        }
        docs = append(docs, Document{
            ID:     m.Vector.Id,
            Score:  m.Score,
            Text:   metadataString(m.Vector.Metadata, p.textKey),
            Source: metadataString(m.Vector.Metadata, "source"),
        })
    }
    return docs, nil
}

// Close releases every open index connection.
func (p *PineconeQuerier) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()

    var firstErr error
    for ns, conn := range p.conns {
        if err := conn.Close(); err != nil && firstErr == nil {
            firstErr = err
        }
        delete(p.conns, ns)
    }
    return firstErr
}

func metadataString(md *structpb.Struct, key string) string {
    if md == nil {
        return ""
    }
    v, ok := md.GetFields()[key]
    if !ok {
        return ""
    }
    return v.GetStringValue()
}
