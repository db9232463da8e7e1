// File: internal/app/app.go
package app

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iyunix/go-chatwidget/internal/auth"
    "github.com/iyunix/go-chatwidget/internal/config"
    "github.com/iyunix/go-chatwidget/internal/repository"
    "github.com/iyunix/go-chatwidget/internal/repository/rest"
    "github.com/iyunix/go-chatwidget/internal/services"
    "github.com/iyunix/go-chatwidget/internal/services/ai"
    "github.com/iyunix/go-chatwidget/internal/services/background"
    "github.com/iyunix/go-chatwidget/internal/services/cache"
    "github.com/iyunix/go-chatwidget/internal/services/chat"
    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
    "github.com/iyunix/go-chatwidget/internal/services/notify"
    "github.com/iyunix/go-chatwidget/internal/services/resilient"
    "github.com/iyunix/go-chatwidget/internal/services/retrieval"
)

// Application aggregates the services a process needs.
type Application struct {
    Config       *config.Config
    Logger       services.Logger
    Store        repository.Store
    AIProvider   *ai.OpenAIProvider
    EmailCapture *chat.EmailCapture

    // Set by Build only.
    Tokens      *auth.TokenService
    Dispatcher  background.Dispatcher
    ChatService *chat.Service

    closers []func(ctx context.Context) error
}

// BuildCore wires the pieces shared by the server and the worker: the
// store, the model provider and the email capture handler.
func BuildCore(cfg *config.Config, logger services.Logger) (*Application, error) {
    a := &Application{Config: cfg, Logger: logger}

    store, err := a.provideStore()
    if err != nil {
        a.Close(context.Background())
        return nil, err
    }
    a.Store = store

    a.AIProvider = ai.NewOpenAIProvider(ProvideAIConfig(cfg), logger)
    notifier := notify.NewService(
        notify.NewHTTPProvider(ProvideNotifyConfig(cfg), ProvideFetcher(logger)),
        ProvideNotifyConfig(cfg),
        logger,
    )
    a.EmailCapture = chat.NewEmailCapture(store, a.AIProvider, notifier, cfg.NotifyTemplateID, logger)
    return a, nil
}

// Build wires everything the HTTP server needs on top of BuildCore.
func Build(cfg *config.Config, logger services.Logger) (*Application, error) {
    a, err := BuildCore(cfg, logger)
    if err != nil {
        return nil, err
    }

    tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.TokenExpiry, logger)
    if err != nil {
        a.Close(context.Background())
        return nil, fmt.Errorf("token service: %w", err)
    }
    a.Tokens = tokens

    retriever, err := a.provideRetriever()
    if err != nil {
        a.Close(context.Background())
        return nil, err
    }

    dispatcher, err := a.provideDispatcher()
    if err != nil {
        a.Close(context.Background())
        return nil, err
    }
    a.Dispatcher = dispatcher

    a.ChatService = chat.NewService(
        a.Store,
        a.provideModel(),
        retriever,
        a.AIProvider,
        dispatcher,
        ProvideChatConfig(cfg),
        logger,
    )
    return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *Application) Close(ctx context.Context) error {
    var errs []error
    for i := len(a.closers) - 1; i >= 0; i-- {
        if err := a.closers[i](ctx); err != nil {
            errs = append(errs, err)
        }
    }
    a.closers = nil
    return errors.Join(errs...)
}

func (a *Application) onClose(fn func(ctx context.Context) error) {
    a.closers = append(a.closers, fn)
}

func (a *Application) provideStore() (repository.Store, error) {
    cfg := a.Config
    var store repository.Store

    switch cfg.StoreBackend {
    case "rest":
        s, err := rest.NewStore(cfg.StoreURL, cfg.StoreAPIKey, ProvideFetcher(a.Logger))
        if err != nil {
            return nil, fmt.Errorf("rest store: %w", err)
        }
        store = s
    default:
        db, err := repository.Open(cfg.DBDriver, cfg.DatabaseDSN)
        if err != nil {
            return nil, err
        }
        if sqlDB, err := db.DB(); err == nil {
            a.onClose(func(context.Context) error { return sqlDB.Close() })
        }
        if !cfg.IsProduction() {
            if err := repository.Migrate(db); err != nil {
                return nil, fmt.Errorf("migrate: %w", err)
            }
        }
        store = repository.NewGormStore(db)
    }

    if !cfg.CacheEnabled() {
        return store, nil
    }
    opts, err := redis.ParseURL(cfg.RedisURL)
    if err != nil {
        return nil, fmt.Errorf("REDIS_URL: %w", err)
    }
    rdb := redis.NewClient(opts)
    a.onClose(func(context.Context) error { return rdb.Close() })
    a.Logger.Info("company cache enabled", "ttl", cfg.CacheTTL.String())
    companies := cache.NewCompanyCache(cache.NewRedisKV(rdb), store, cfg.CacheTTL, a.Logger)
    return cache.NewStore(store, companies), nil
}

// provideModel picks the streaming backend. The Responses API client speaks
// the event stream natively; chat_completions goes through go-openai.
func (a *Application) provideModel() chat.ModelStreamer {
    if a.Config.ModelAPI == "chat_completions" {
        return a.AIProvider
    }
    return modelstream.NewClient(a.Config.OpenAIAPIKey, a.Config.OpenAIBaseURL, &http.Client{}, a.Logger)
}

// provideRetriever returns nil when Pinecone is not configured, which turns
// retrieval off for every company.
func (a *Application) provideRetriever() (chat.Retriever, error) {
    rc := ProvideRetrievalConfig(a.Config)
    if rc.APIKey == "" || rc.IndexHost == "" {
        a.Logger.Warn("pinecone not configured; retrieval disabled")
        return nil, nil
    }
    querier, err := retrieval.NewPineconeQuerier(rc, a.Logger)
    if err != nil {
        return nil, fmt.Errorf("pinecone: %w", err)
    }
    a.onClose(func(context.Context) error { return querier.Close() })
    return retrieval.NewService(a.AIProvider, querier, rc, a.Logger), nil
}

// provideDispatcher publishes to RabbitMQ when RABBIT_URL is set, otherwise
// jobs run on an in-process pool.
func (a *Application) provideDispatcher() (background.Dispatcher, error) {
    cfg := a.Config
    if cfg.RabbitURL != "" {
        pub, err := background.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitQueue)
        if err != nil {
            return nil, fmt.Errorf("rabbitmq: %w", err)
        }
        a.onClose(pub.Close)
        return pub, nil
    }
    pool := background.NewPool(cfg.WorkerCount, cfg.JobQueue, 2*time.Minute, a.EmailCapture.Handle, a.Logger)
    a.onClose(pool.Close)
    return pool, nil
}

func ProvideFetcher(logger services.Logger) *resilient.Fetcher {
    return resilient.NewFetcher(&http.Client{}, resilient.DefaultRetryConfig(), logger)
}

func ProvideAIConfig(cfg *config.Config) *ai.Config {
    aiConfig := ai.DefaultConfig()
    aiConfig.EmbeddingKey = cfg.OpenAIAPIKey
    aiConfig.EmbeddingBaseURL = cfg.OpenAIBaseURL
    aiConfig.EmbeddingModel = cfg.EmbeddingModel
    aiConfig.LLMKey = cfg.OpenAIAPIKey
    aiConfig.LLMBaseURL = cfg.OpenAIBaseURL
    aiConfig.UtilityModel = cfg.UtilityModel
    return aiConfig
}

func ProvideRetrievalConfig(cfg *config.Config) *retrieval.Config {
    rc := retrieval.DefaultConfig()
    rc.APIKey = cfg.PineconeAPIKey
    rc.IndexHost = cfg.PineconeIndexHost
    if cfg.RetrievalTopK > 0 {
        rc.TopK = cfg.RetrievalTopK
    }
    return rc
}

func ProvideNotifyConfig(cfg *config.Config) *notify.Config {
    nc := notify.DefaultConfig()
    nc.APIKey = cfg.NotifyAPIKey
    nc.APIURL = cfg.NotifyAPIURL
    nc.TemplateID = cfg.NotifyTemplateID
    nc.FromAddress = cfg.NotifyFrom
    return nc
}

func ProvideChatConfig(cfg *config.Config) *chat.Config {
    cc := chat.DefaultConfig()
    cc.Model = cfg.ChatModel
    if cfg.ChatMaxMessages > 0 {
        cc.MaxMessages = cfg.ChatMaxMessages
    }
    if cfg.ChatHistoryLimit > 0 {
        cc.HistoryLimit = cfg.ChatHistoryLimit
    }
    cc.NotificationTemplateID = cfg.NotifyTemplateID
    return cc
}
