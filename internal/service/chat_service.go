// FILE: internal/service/chat_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/pkg/coerce"
	"github.com/lrfluobida/agent-job-coach/pkg/events"
	"github.com/lrfluobida/agent-job-coach/pkg/graph"
	"github.com/lrfluobida/agent-job-coach/pkg/llm"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
	"github.com/lrfluobida/agent-job-coach/pkg/session"

	"github.com/google/uuid"
)

// turnRunner is the orchestrator surface the chat service drives. Tests
// substitute a scripted fake.
type turnRunner interface {
	RunTurn(ctx context.Context, input graph.TurnInput) (*graph.TurnOutput, error)
}

// conversationStore is the slice of the session store used around a turn.
type conversationStore interface {
	Ping(ctx context.Context) error
	AcquireLock(ctx context.Context, conversationID, ownerToken string) (bool, error)
	ReleaseLock(ctx context.Context, conversationID, ownerToken string) error
	GetRequestResult(ctx context.Context, conversationID, requestID string) (*session.RequestCacheEntry, error)
	SetRequestResult(ctx context.Context, conversationID, requestID string, entry session.RequestCacheEntry) error
	GetInterviewState(ctx context.Context, conversationID string) (session.InterviewState, error)
	SetInterviewState(ctx context.Context, conversationID string, state session.InterviewState) error
}

var _ conversationStore = (*session.Store)(nil)

// EventPublisher emits domain events after a completed turn. A nil
// publisher disables eventing.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ChatTurnResult is one completed turn, ready for delivery. Citation quotes
// are already resolved against the used context.
type ChatTurnResult struct {
	Answer         string
	Citations      []coerce.Citation
	UsedContext    []retrieval.Evidence
	ConversationId string
	RequestId      string
}

type IChatService interface {
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
	StreamTurn(ctx context.Context, req *dto.ChatStreamRequest) (*ChatTurnResult, error)
}

type chatService struct {
	orchestrator   turnRunner
	store          conversationStore
	retriever      retrieval.Retriever
	eventPublisher EventPublisher
	logger         logger.ILogger
}

func NewChatService(
	orchestrator turnRunner,
	store conversationStore,
	retriever retrieval.Retriever,
	publisher EventPublisher,
	log logger.ILogger,
) IChatService {
	return &chatService{
		orchestrator:   orchestrator,
		store:          store,
		retriever:      retriever,
		eventPublisher: publisher,
		logger:         log,
	}
}

func scopeToFilter(scope *dto.EvidenceScope) retrieval.Filter {
	if scope == nil {
		return retrieval.Filter{}
	}
	return retrieval.Filter{
		SourceType: scope.SourceType,
		SourceID:   scope.SourceId,
		DocKind:    scope.DocKind,
	}
}

func evidenceToDTO(evs []retrieval.Evidence) []dto.EvidenceDTO {
	out := make([]dto.EvidenceDTO, 0, len(evs))
	for _, ev := range evs {
		meta := ev.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		out = append(out, dto.EvidenceDTO{
			Id:       ev.ID,
			Text:     ev.Text,
			Metadata: meta,
			Score:    ev.Score,
		})
	}
	return out
}

// resolveCitations fills empty quotes from the cited context, shortened to
// the display budget.
func resolveCitations(citations []coerce.Citation, usedContext []retrieval.Evidence) []coerce.Citation {
	byID := make(map[string]string, len(usedContext))
	for _, ev := range usedContext {
		byID[ev.ID] = ev.Text
	}
	out := make([]coerce.Citation, 0, len(citations))
	for _, c := range citations {
		if c.ID == "" {
			continue
		}
		quote := c.Quote
		if quote == "" {
			quote = byID[c.ID]
		}
		out = append(out, coerce.Citation{
			ID:    c.ID,
			Quote: coerce.ShortenQuote(quote, coerce.MaxQuoteLen),
		})
	}
	return out
}

func citationsToDTO(citations []coerce.Citation, usedContext []retrieval.Evidence) []dto.CitationDTO {
	resolved := resolveCitations(citations, usedContext)
	out := make([]dto.CitationDTO, 0, len(resolved))
	for _, c := range resolved {
		out = append(out, dto.CitationDTO{Id: c.ID, Quote: c.Quote})
	}
	return out
}

func (s *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	out, err := s.orchestrator.RunTurn(ctx, graph.TurnInput{
		Question: req.Question,
		TopK:     req.TopK,
		Filter:   scopeToFilter(req.Filter),
	})
	if err != nil {
		return nil, fmt.Errorf("chat turn: %w", err)
	}
	return &dto.ChatResponse{
		Ok:          true,
		Answer:      out.Answer,
		Citations:   citationsToDTO(out.Citations, out.UsedContext),
		UsedContext: evidenceToDTO(out.UsedContext),
	}, nil
}

func requiresRedisSession(req *dto.ChatStreamRequest) bool {
	mode := req.Mode
	if mode == "" {
		mode = graph.ModeChat
	}
	return mode == graph.ModeResumeInterview &&
		req.ActiveSourceType == "resume" &&
		strings.TrimSpace(req.ActiveSourceId) != ""
}

func newHexID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *chatService) StreamTurn(ctx context.Context, req *dto.ChatStreamRequest) (*ChatTurnResult, error) {
	conversationID := strings.TrimSpace(req.ConversationId)
	if conversationID == "" {
		conversationID = newHexID("conv")
	}
	requestID := strings.TrimSpace(req.RequestId)
	if requestID == "" {
		requestID = newHexID("req")
	}

	var out *graph.TurnOutput
	var err error
	if requiresRedisSession(req) {
		out, err = s.runLockedTurn(ctx, req, conversationID, requestID)
	} else {
		out, err = s.invokeGraph(ctx, req, conversationID, session.InterviewState{})
	}
	if err != nil {
		return nil, err
	}

	s.publishTurnCompleted(ctx, conversationID, requestID, req.Mode)

	return &ChatTurnResult{
		Answer:         out.Answer,
		Citations:      resolveCitations(out.Citations, out.UsedContext),
		UsedContext:    out.UsedContext,
		ConversationId: conversationID,
		RequestId:      requestID,
	}, nil
}

// runLockedTurn serializes concurrent turns per conversation and replays the
// cached result on a retried request id instead of re-running the turn.
func (s *chatService) runLockedTurn(ctx context.Context, req *dto.ChatStreamRequest, conversationID, requestID string) (*graph.TurnOutput, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, err
	}

	lockToken := newHexID("lock")
	acquired, err := s.store.AcquireLock(ctx, conversationID, lockToken)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, session.ErrConversationBusy
	}
	defer func() {
		if releaseErr := s.store.ReleaseLock(context.WithoutCancel(ctx), conversationID, lockToken); releaseErr != nil {
			s.logger.Warn("chat_service", "failed to release conversation lock", map[string]interface{}{
				"conversation_id": conversationID,
				"error":           releaseErr.Error(),
			})
		}
	}()

	cached, err := s.store.GetRequestResult(ctx, conversationID, requestID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return s.rehydrateCached(ctx, cached)
	}

	state, err := s.store.GetInterviewState(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out, err := s.invokeGraph(ctx, req, conversationID, state)
	if err != nil {
		return nil, err
	}

	nextState := session.InterviewState{}
	if out.InterviewState != nil {
		nextState = *out.InterviewState
	}
	if err := s.store.SetInterviewState(ctx, conversationID, nextState); err != nil {
		return nil, err
	}
	if err := s.store.SetRequestResult(ctx, conversationID, requestID, compactForRequestCache(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *chatService) invokeGraph(ctx context.Context, req *dto.ChatStreamRequest, conversationID string, state session.InterviewState) (*graph.TurnOutput, error) {
	mode := req.Mode
	if mode == "" {
		mode = graph.ModeChat
	}
	meta := graph.SessionMeta{
		Mode:             mode,
		ActiveSourceID:   req.ActiveSourceId,
		ActiveSourceType: req.ActiveSourceType,
		ConversationID:   conversationID,
		InterviewState:   &state,
	}

	history := make([]llm.Message, 0, len(req.History)+1)
	history = append(history, graph.BuildSessionMarker(meta))
	for _, msg := range req.History {
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	out, err := s.orchestrator.RunTurn(ctx, graph.TurnInput{
		Question: req.Question,
		TopK:     req.TopK,
		Filter:   scopeToFilter(req.Filter),
		History:  history,
	})
	if err != nil {
		return nil, fmt.Errorf("stream turn: %w", err)
	}
	return out, nil
}

// compactForRequestCache keeps only the answer and deduplicated citation ids;
// the context is rehydrated from the evidence store on replay.
func compactForRequestCache(out *graph.TurnOutput) session.RequestCacheEntry {
	seen := make(map[string]bool, len(out.Citations))
	ids := make([]string, 0, len(out.Citations))
	for _, c := range out.Citations {
		id := strings.TrimSpace(c.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return session.RequestCacheEntry{Answer: out.Answer, CitationIDs: ids}
}

func (s *chatService) rehydrateCached(ctx context.Context, cached *session.RequestCacheEntry) (*graph.TurnOutput, error) {
	var usedContext []retrieval.Evidence
	if len(cached.CitationIDs) > 0 {
		evs, err := s.retriever.GetByIDs(ctx, cached.CitationIDs)
		if err != nil {
			s.logger.Warn("chat_service", "failed to rehydrate cached context", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			usedContext = evs
		}
	}

	citations := make([]coerce.Citation, 0, len(cached.CitationIDs))
	for _, id := range cached.CitationIDs {
		citations = append(citations, coerce.Citation{ID: id})
	}

	return &graph.TurnOutput{
		Answer:      cached.Answer,
		Citations:   citations,
		UsedContext: usedContext,
	}, nil
}

func (s *chatService) publishTurnCompleted(ctx context.Context, conversationID, requestID, mode string) {
	if s.eventPublisher == nil {
		return
	}
	if mode == "" {
		mode = graph.ModeChat
	}
	event := events.BaseEvent{
		Type: "turn.completed",
		Data: map[string]interface{}{
			"conversation_id": conversationID,
			"request_id":      requestID,
			"mode":            mode,
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("chat_service", "failed to publish turn event", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err.Error(),
		})
	}
}
