// File: internal/services/chat/service.go
package chat

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/iyunix/go-chatwidget/internal/domain"
    "github.com/iyunix/go-chatwidget/internal/observability"
    "github.com/iyunix/go-chatwidget/internal/protocol"
    "github.com/iyunix/go-chatwidget/internal/repository"
    "github.com/iyunix/go-chatwidget/internal/services/background"
    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
)

// ErrClientGone is returned when the emitter can no longer reach the client.
var ErrClientGone = errors.New("chat: client disconnected")

// Service runs chat turns: it persists both sides of the conversation and
// streams the model reply to an Emitter.
type Service struct {
    config     *Config
    store      repository.Store
    model      ModelStreamer
    retriever  Retriever
    side       *SideChannel
    dispatcher background.Dispatcher
    prompts    *PromptBuilder
    locks      *KeyedMutex
    logger     Logger
    now        func() time.Time
}

// NewService wires the turn pipeline. retriever, detector and dispatcher
// may be nil, which disables the matching step.
func NewService(
    store repository.Store,
    model ModelStreamer,
    retriever Retriever,
    detector EmailDetector,
    dispatcher background.Dispatcher,
    config *Config,
    logger Logger,
) *Service {
    if config == nil {
        config = DefaultConfig()
    }
    var side *SideChannel
    if detector != nil {
        side = NewSideChannel(detector, config.SideChannelTimeout, logger)
    }
    return &Service{
        config:     config,
        store:      store,
        model:      model,
        retriever:  retriever,
        side:       side,
        dispatcher: dispatcher,
        prompts:    NewPromptBuilder(config, logger),
        locks:      NewKeyedMutex(),
        logger:     logger,
        now:        time.Now,
    }
}

// CreateChat opens a conversation for companyID. An empty userID gets an
// anonymous id. The returned messages hold the company welcome, if any.
func (s *Service) CreateChat(ctx context.Context, companyID, userID string) (*domain.Chat, []domain.Message, error) {
    companyID = strings.TrimSpace(companyID)
    if companyID == "" {
        return nil, nil, NewValidationError("create_chat", "companyId is required")
    }

    company, err := s.store.GetCompanyByID(ctx, companyID)
    if err != nil {
        if errors.Is(err, repository.ErrCompanyNotFound) {
            return nil, nil, NewCompanyNotFoundError(err)
        }
        return nil, nil, NewStoreError("load_company", err)
    }

    if userID == "" {
        userID = uuid.NewString()
    }
    chat := &domain.Chat{ID: uuid.NewString(), UserID: userID, CompanyID: company.ID}
    if err := s.store.InsertChat(ctx, chat); err != nil {
        return nil, nil, NewStoreError("insert_chat", err)
    }
    s.logger.Info("chat created", "chat_id", chat.ID, "company_id", company.ID)

    messages := []domain.Message{}
    if welcome := strings.TrimSpace(company.WelcomeMessage); welcome != "" {
        msg, err := s.appendMessage(ctx, chat.ID, userID, domain.RoleAssistant, welcome)
        if err != nil {
            return nil, nil, NewStoreError("insert_welcome", err)
        }
        messages = append(messages, *msg)
    }
    return chat, messages, nil
}

// ListMessages returns the transcript of a chat owned by userID.
func (s *Service) ListMessages(ctx context.Context, chatID, userID string) ([]domain.Message, error) {
    chat, err := s.loadChat(ctx, chatID)
    if err != nil {
        return nil, err
    }
    if chat.UserID != userID {
        return nil, NewUnauthorizedError(chatID)
    }
    messages, err := s.store.ListBySequenceAsc(ctx, chat.ID)
    if err != nil {
        return nil, NewStoreError("list_messages", err)
    }
    return messages, nil
}

// StreamTurn runs one turn. Setup failures are returned before anything is
// emitted so the caller can answer with a plain HTTP error. Once `start` has
// been emitted every failure is also reported as an `error` event.
func (s *Service) StreamTurn(ctx context.Context, req TurnRequest, emitter Emitter) (*Turn, error) {
    turn := newTurn()

    content := strings.TrimSpace(req.Content)
    if content == "" {
        return s.abort(turn, NewValidationError("stream_turn", "content is required"))
    }
    if req.UserID == "" {
        return s.abort(turn, NewUnauthorizedError(req.ChatID))
    }

    chat, err := s.loadChat(ctx, req.ChatID)
    if err != nil {
        return s.abort(turn, err)
    }
    if chat.UserID != req.UserID {
        return s.abort(turn, NewUnauthorizedError(req.ChatID))
    }
    company, err := s.store.GetCompanyByID(ctx, chat.CompanyID)
    if err != nil {
        if errors.Is(err, repository.ErrCompanyNotFound) {
            return s.abort(turn, NewCompanyNotFoundError(err))
        }
        return s.abort(turn, NewStoreError("load_company", err))
    }

    emit := func(ev protocol.Event) error {
        if err := emitter.Emit(ev); err != nil {
            return fmt.Errorf("%w: %v", ErrClientGone, err)
        }
        return nil
    }
    if err := emit(protocol.Start()); err != nil {
        return s.abort(turn, err)
    }

    // Persist the user message.
    s.mustAdvance(turn, StatePersistingUserMessage)
    if _, err := s.appendMessage(ctx, chat.ID, req.UserID, domain.RoleUser, content); err != nil {
        return s.failStreaming(turn, emit, NewStoreError("insert_user_message", err))
    }
    // Queued once the turn is over so the summary sees the reply.
    defer s.captureEmail(ctx, chat, content)

    // Retrieval never fails the turn.
    s.mustAdvance(turn, StateRetrievingContext)
    retrieved := s.retrieve(ctx, company, content)

    // Stream the model reply.
    s.mustAdvance(turn, StateStreamingModel)
    transcript, err := s.store.ListBySequenceAsc(ctx, chat.ID)
    if err != nil {
        return s.failStreaming(turn, emit, NewStoreError("load_transcript", err))
    }
    reply, err := s.streamReply(ctx, company, transcript, retrieved, req.Timezone, emit)
    if err != nil {
        if errors.Is(err, ErrClientGone) || ctx.Err() != nil {
            s.logger.Info("client left during stream", "chat_id", chat.ID)
            turn.fail(err)
            return turn, err
        }
        s.logger.Error("model stream failed", "chat_id", chat.ID, "error", err)
        return s.failStreaming(turn, emit, NewModelError("stream_model", err))
    }
    if strings.TrimSpace(reply) == "" {
        s.logger.Warn("model returned no text, using fallback", "chat_id", chat.ID)
        reply = s.config.FallbackReply
    }

    // Detection runs while the reply is stored.
    s.mustAdvance(turn, StatePersistingAssistantMessage)
    var detected <-chan detection
    if s.wantsSideChannel(req, company, chat) {
        detected = s.side.start(ctx, reply, transcript)
    }

    storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StoreTimeout)
    defer cancel()
    if _, err := s.appendMessage(storeCtx, chat.ID, req.UserID, domain.RoleAssistant, reply); err != nil {
        return s.failStreaming(turn, emit, NewStoreError("insert_assistant_message", err))
    }
    if pruned, err := s.store.CountAndPruneOldest(storeCtx, chat.ID, s.config.MaxMessages); err != nil {
        observability.StepDegraded("prune")
        s.logger.Warn("pruning transcript failed", "chat_id", chat.ID, "error", err)
    } else if pruned > 0 {
        s.logger.Debug("transcript pruned", "chat_id", chat.ID, "removed", pruned)
    }

    s.mustAdvance(turn, StateSideChannelDetection)
    if detected != nil {
        d := <-detected
        switch {
        case d.err != nil:
            observability.StepDegraded("side_channel")
            s.logger.Warn("side channel detection failed", "chat_id", chat.ID, "error", d.err)
        case d.event != nil && turn.claimSpecial():
            if err := emit(*d.event); err != nil {
                turn.fail(err)
                return turn, err
            }
            observability.SpecialEventEmitted(string(d.event.Type))
        }
    }

    if err := emit(protocol.Done(reply)); err != nil {
        turn.fail(err)
        return turn, err
    }
    s.mustAdvance(turn, StateDone)
    return turn, nil
}

func (s *Service) loadChat(ctx context.Context, chatID string) (*domain.Chat, error) {
    if strings.TrimSpace(chatID) == "" {
        return nil, NewValidationError("load_chat", "chat id is required")
    }
    chat, err := s.store.GetChatByID(ctx, chatID)
    if err != nil {
        if errors.Is(err, repository.ErrChatNotFound) {
            return nil, NewChatNotFoundError(chatID, err)
        }
        return nil, NewStoreError("load_chat", err)
    }
    return chat, nil
}

func (s *Service) retrieve(ctx context.Context, company *domain.Company, query string) string {
    if s.retriever == nil || company.IndexName == "" {
        return ""
    }
    rctx, cancel := context.WithTimeout(ctx, s.config.RetrievalTimeout)
    defer cancel()

    docs, err := s.retriever.Search(rctx, company.IndexName, query)
    if err != nil {
        observability.StepDegraded("retrieval")
        s.logger.Warn("retrieval failed, answering without context", "company_id", company.ID, "error", err)
        return ""
    }
    return s.retriever.FormatContext(docs)
}

func (s *Service) streamReply(
    ctx context.Context,
    company *domain.Company,
    transcript []domain.Message,
    retrieved, timezone string,
    emit func(protocol.Event) error,
) (string, error) {
    model := company.Model
    if model == "" {
        model = s.config.Model
    }
    temperature := s.config.Temperature
    req := modelstream.Request{
        Model:           model,
        Instructions:    s.prompts.BuildInstructions(company, retrieved, timezone, s.now()),
        Input:           s.prompts.BuildInput(transcript),
        Temperature:     &temperature,
        MaxOutputTokens: s.config.MaxOutputTokens,
        Stream:          true,
    }

    mctx, cancel := context.WithTimeout(ctx, s.config.ModelTimeout)
    defer cancel()

    started := time.Now()
    var reply strings.Builder
    err := s.model.Stream(mctx, req, func(ev modelstream.Event) error {
        text := modelstream.Decode(ev).Text
        if text == "" {
            return nil
        }
        if reply.Len() == 0 {
            observability.ObserveFirstToken(time.Since(started))
        }
        reply.WriteString(text)
        return emit(protocol.Chunk(text))
    })
    if err != nil {
        return "", err
    }
    return reply.String(), nil
}

func (s *Service) wantsSideChannel(req TurnRequest, company *domain.Company, chat *domain.Chat) bool {
    return s.side != nil && req.EmailCapture && company.EmailCaptureEnabled && !chat.HasEmail()
}

// captureEmail hands an address found in the user's message to the
// background dispatcher. It never blocks the stream.
func (s *Service) captureEmail(ctx context.Context, chat *domain.Chat, content string) {
    if s.dispatcher == nil || chat.HasEmail() {
        return
    }
    email, ok := ExtractEmail(content)
    if !ok {
        return
    }
    job := background.NewJob(background.KindEmailCapture, chat.ID)
    job.Email = email
    if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), job); err != nil {
        observability.StepDegraded("email_capture")
        s.logger.Warn("email capture not queued", "chat_id", chat.ID, "job_id", job.ID, "error", err)
        return
    }
    s.logger.Info("email capture queued", "chat_id", chat.ID, "job_id", job.ID)
}

// appendMessage assigns the next sequence number and inserts the message.
// The per-chat lock orders writers in this process; the unique index
// catches writers elsewhere, in which case the read is repeated.
func (s *Service) appendMessage(ctx context.Context, chatID, userID string, role domain.Role, content string) (*domain.Message, error) {
    unlock := s.locks.Lock(chatID)
    defer unlock()

    // The id stays fixed across attempts so a store that retries an
    // insert can recognise its own committed row.
    id := uuid.NewString()
    var lastErr error
    for attempt := 1; attempt <= s.config.SequenceRetries; attempt++ {
        latest, err := s.store.LatestSequenceNumber(ctx, chatID)
        if err != nil {
            return nil, err
        }
        msg := &domain.Message{
            ID:             id,
            ChatID:         chatID,
            UserID:         userID,
            Role:           role,
            Content:        content,
            SequenceNumber: latest + 1,
        }
        err = s.store.InsertMessage(ctx, msg)
        if err == nil {
            return msg, nil
        }
        if !errors.Is(err, repository.ErrSequenceConflict) {
            return nil, err
        }
        observability.SequenceConflict()
        s.logger.Warn("sequence collision, retrying", "chat_id", chatID, "sequence", msg.SequenceNumber, "attempt", attempt)
        lastErr = err
    }
    return nil, lastErr
}

func (s *Service) abort(turn *Turn, err error) (*Turn, error) {
    turn.fail(err)
    return turn, err
}

func (s *Service) failStreaming(turn *Turn, emit func(protocol.Event) error, err error) (*Turn, error) {
    turn.fail(err)
    if emitErr := emit(protocol.Failure(PublicMessage(err), CodeOf(err))); emitErr != nil {
        s.logger.Debug("could not deliver error event", "error", emitErr)
    }
    return turn, err
}

func (s *Service) mustAdvance(turn *Turn, next State) {
    if err := turn.advance(next); err != nil {
        // Transitions are fixed in code; reaching this is a programming error.
        panic(err)
    }
}
