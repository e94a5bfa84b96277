// Package services – ChatService
//
// This file implements ChatService, the application-level component that owns
// the lifecycle of conversations and chat exchanges. It resolves or creates
// the student's conversation, assembles the prompt from cached history,
// retrieved course material, and the student's profile, calls the completion
// provider, and persists the user/assistant message pair.
//
// Retrieval and profile lookup are best-effort: their failure degrades the
// prompt, never the exchange. Provider failures surface as a tagged degraded
// reply rather than an error, so a student always gets an answer. The one
// propagated failure is ErrConversationNotFound for a foreign conversation.
//
// Optional enhancement: it also auto-generates a conversation title from the
// first user message when the conversation still has a default/empty title.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/student identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edustack-labs/go-student-assistant/internal/ai"
	"github.com/edustack-labs/go-student-assistant/internal/domain"
	"github.com/edustack-labs/go-student-assistant/internal/history"
	"github.com/edustack-labs/go-student-assistant/internal/knowledge"
	"github.com/edustack-labs/go-student-assistant/internal/repo"
	"github.com/edustack-labs/go-student-assistant/internal/students"
)

const (
	// default titles we consider “placeholder” and eligible for auto-generation
	defaultTitleNew      = "New conversation"
	defaultTitleUntitled = "Untitled"

	// systemPrompt is the assistant's standing instruction; profile and
	// retrieved material are appended per exchange.
	systemPrompt = "You are a helpful study assistant for an online learning platform. " +
		"Answer using the provided course material when it is relevant, and say so " +
		"when it is not sufficient to answer."

	// busyContent is served when the student exceeds their exchange budget.
	busyContent = "I'm answering a lot of questions from you right now. " +
		"Give me a moment and ask again shortly."
)

// Retriever is the slice of the knowledge service the orchestrator needs.
type Retriever interface {
	Search(ctx context.Context, query, courseID string, limit int, minScore *float64) ([]knowledge.Result, error)
}

// ProfileSource supplies the student profile used to enrich the system prompt.
type ProfileSource interface {
	Profile(ctx context.Context, studentID string) (*students.Profile, error)
}

// Exchange is the outcome of one chat round trip.
type Exchange struct {
	ConversationID   string          `json:"conversation_id"`
	UserMessage      *domain.Message `json:"user_message"`
	AssistantMessage *domain.Message `json:"assistant_message"`
	Reply            ai.Reply        `json:"reply"`
}

// ChatService coordinates conversations, prompt assembly, and completions.
type ChatService struct {
	DB        *gorm.DB
	Provider  ai.Completer
	Knowledge Retriever
	Profiles  ProfileSource
	History   *history.Cache

	// Retrieval tuning for prompt context.
	RAGTopK     int
	RAGMinScore float64

	// Optional guards
	MaxMessageRunes int

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int

	limiter *slidingWindow
}

// NewChatService constructs a ChatService with sane defaults. rateMax <= 0
// disables the per-student exchange limiter.
func NewChatService(db *gorm.DB, provider ai.Completer, retriever Retriever, profiles ProfileSource, cache *history.Cache, ragTopK int, ragMinScore float64, rateMax int, rateWindow time.Duration) *ChatService {
	if ragTopK <= 0 {
		ragTopK = 3
	}
	return &ChatService{
		DB:          db,
		Provider:    provider,
		Knowledge:   retriever,
		Profiles:    profiles,
		History:     cache,
		RAGTopK:     ragTopK,
		RAGMinScore: ragMinScore,
		TitleLocale: language.Und,
		TitleMaxLen: 60,
		limiter:     newSlidingWindow(rateMax, rateWindow),
	}
}

// SendMessage runs one full exchange: the user message is persisted, a reply
// is produced (possibly degraded), and both sides of the exchange are stored
// and appended to the history window.
func (s *ChatService) SendMessage(ctx context.Context, studentID, message, conversationID string) (*Exchange, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("student.id", studentID),
			attribute.String("conversation.id", conversationID),
		),
	)
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	conv, err := s.resolveConversation(ctx, studentID, conversationID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.resolved_id", conv.ID))

	if !s.limiter.allow(studentID) {
		reply := ai.Reply{
			Content:        busyContent,
			Model:          "canned",
			Degraded:       true,
			DegradedReason: ai.ReasonRateLimited,
		}
		return s.persistExchange(ctx, conv, message, reply)
	}

	reply := s.complete(ctx, conv.ID, message, studentID, nil)
	ex, err := s.persistExchange(ctx, conv, message, reply)
	if err != nil {
		return nil, err
	}
	s.limiter.record(studentID)
	return ex, nil
}

// StreamMessage behaves like SendMessage but forwards reply deltas to onDelta
// as the provider produces them. A rate-limited exchange delivers the canned
// busy reply as a single delta. When the stream fails midway, the partial
// output already forwarded stands and the error is returned; nothing but the
// user message is persisted in that case.
func (s *ChatService) StreamMessage(ctx context.Context, studentID, message, conversationID string, onDelta func(string) error) (*Exchange, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "StreamMessage",
		trace.WithAttributes(
			attribute.String("student.id", studentID),
			attribute.String("conversation.id", conversationID),
		),
	)
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	conv, err := s.resolveConversation(ctx, studentID, conversationID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.resolved_id", conv.ID))

	if !s.limiter.allow(studentID) {
		if err := onDelta(busyContent); err != nil {
			return nil, err
		}
		reply := ai.Reply{
			Content:        busyContent,
			Model:          "canned",
			Degraded:       true,
			DegradedReason: ai.ReasonRateLimited,
		}
		return s.persistExchange(ctx, conv, message, reply)
	}

	// Persist the user message up front so it survives a broken stream.
	userMsg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleUser, message, nil, "")
	if err != nil {
		return nil, err
	}
	s.History.Append(conv.ID, ai.Turn{Role: domain.RoleUser, Content: message})

	prompt := s.buildPrompt(ctx, conv.ID, message, studentID, []ai.Turn{{Role: domain.RoleUser, Content: message}})

	reply, err := s.Provider.StreamCompletion(ctx, prompt, onDelta)
	if err != nil {
		if errors.Is(err, ai.ErrProviderUnavailable) {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("stream failed, exchange degraded")
		}
		return &Exchange{ConversationID: conv.ID, UserMessage: userMsg, Reply: reply}, err
	}

	assistantMsg, err := s.persistAssistant(ctx, conv, message, reply)
	if err != nil {
		return nil, err
	}
	s.History.Append(conv.ID, ai.Turn{Role: domain.RoleAssistant, Content: reply.Content})
	s.limiter.record(studentID)

	return &Exchange{
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Reply:            reply,
	}, nil
}

// StartConversation creates a new active conversation for the student and
// marks every other one inactive. initialContext, when non-empty, is seeded
// into the history window as a system turn.
func (s *ChatService) StartConversation(ctx context.Context, studentID, initialContext string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "StartConversation",
		trace.WithAttributes(attribute.String("student.id", studentID)),
	)
	defer span.End()

	var conv *domain.Conversation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeactivateConversations(ctx, tx, studentID); err != nil {
			return err
		}
		c, err := repo.CreateConversation(ctx, tx, studentID, defaultTitleNew)
		if err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(initialContext) != "" {
		s.History.StartFresh(conv.ID, ai.Turn{Role: domain.RoleSystem, Content: strings.TrimSpace(initialContext)})
	} else {
		s.History.StartFresh(conv.ID)
	}
	return conv, nil
}

// ListConversations returns the student's conversations, most recently
// active first.
func (s *ChatService) ListConversations(ctx context.Context, studentID string) ([]domain.Conversation, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "ListConversations",
		trace.WithAttributes(attribute.String("student.id", studentID)),
	)
	defer span.End()

	return repo.ListConversations(ctx, s.DB, studentID)
}

// ListMessagesPage returns paginated messages of a conversation the student
// owns. With fromEnd, page 1 holds the last pageSize messages (the page a
// chat UI opens on); messages inside a page are always oldest-first.
func (s *ChatService) ListMessagesPage(ctx context.Context, studentID, conversationID string, page, pageSize int, fromEnd bool) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "ListMessagesPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
			attribute.Bool("from_end", fromEnd),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	if _, err := repo.GetConversation(ctx, s.DB, conversationID, studentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrConversationNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	offset := (page - 1) * pageSize
	limit := pageSize
	if fromEnd {
		offset = int(total) - page*pageSize
		if offset < 0 {
			// first (partial) page from the start of the conversation
			limit = pageSize + offset
			offset = 0
			if limit <= 0 {
				return []domain.Message{}, total, nil
			}
		}
	} else if offset >= int(total) {
		return []domain.Message{}, total, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, limit)
	return items, total, err
}

// DeleteConversation removes a conversation the student owns, together with
// its messages and cached history window.
func (s *ChatService) DeleteConversation(ctx context.Context, studentID, conversationID string) error {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "DeleteConversation",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if err := repo.DeleteConversation(ctx, s.DB, conversationID, studentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	s.History.Evict(conversationID)
	return nil
}

// resolveConversation returns the conversation to use for an exchange: the
// named one (ownership enforced), otherwise the student's active one,
// otherwise a brand-new conversation.
func (s *ChatService) resolveConversation(ctx context.Context, studentID, conversationID string) (*domain.Conversation, error) {
	if conversationID != "" {
		conv, err := repo.GetConversation(ctx, s.DB, conversationID, studentID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, err
		}
		return conv, nil
	}

	var conv domain.Conversation
	err := s.DB.WithContext(ctx).
		Where("student_id = ? AND is_active = ?", studentID, true).
		Order("created_at DESC").
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.StartConversation(ctx, studentID, "")
}

// complete assembles the prompt and calls the provider, converting provider
// failure into a tagged degraded reply.
func (s *ChatService) complete(ctx context.Context, conversationID, message, studentID string, extraTurns []ai.Turn) ai.Reply {
	prompt := s.buildPrompt(ctx, conversationID, message, studentID, extraTurns)

	reply, err := s.Provider.Complete(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("completion failed, serving degraded reply")
		return ai.Reply{
			Content: "I couldn't reach the language model just now. " +
				"Your question was saved, please try again in a moment.",
			Model:          "canned",
			Degraded:       true,
			DegradedReason: ai.ReasonProviderError,
		}
	}
	return reply
}

// buildPrompt combines the standing system prompt, the student profile, and
// retrieved course material with the cached history window. extraTurns names
// turns already appended to the cache this exchange (so they are not doubled
// into the history portion of the prompt).
func (s *ChatService) buildPrompt(ctx context.Context, conversationID, message, studentID string, extraTurns []ai.Turn) ai.Prompt {
	system := []string{systemPrompt}

	if s.Profiles != nil {
		if p, err := s.Profiles.Profile(ctx, studentID); err != nil {
			log.Debug().Err(err).Str("student_id", studentID).Msg("profile lookup skipped")
		} else if line := p.PromptContext(); line != "" {
			system = append(system, line)
		}
	}

	if s.Knowledge != nil {
		results, err := s.Knowledge.Search(ctx, message, "", s.RAGTopK, &s.RAGMinScore)
		if err != nil {
			log.Warn().Err(err).Msg("retrieval failed, answering without course material")
		} else if len(results) > 0 {
			var b strings.Builder
			b.WriteString("Relevant course material:")
			for _, r := range results {
				b.WriteString("\n- ")
				b.WriteString(r.Chunk.Content)
			}
			system = append(system, b.String())
		}
	}

	turns, err := s.History.Get(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("history load failed, answering without context")
		turns = nil
	}
	turns = trimTrailing(turns, extraTurns)

	return ai.Prompt{
		System:  strings.Join(system, "\n\n"),
		History: turns,
		User:    message,
	}
}

// persistExchange stores both sides of a completed exchange, updates the
// conversation's activity counters, auto-titles when applicable, and appends
// the pair to the history window.
func (s *ChatService) persistExchange(ctx context.Context, conv *domain.Conversation, message string, reply ai.Reply) (*Exchange, error) {
	userMsg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleUser, message, nil, "")
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.persistAssistant(ctx, conv, message, reply)
	if err != nil {
		return nil, err
	}

	s.History.Append(conv.ID,
		ai.Turn{Role: domain.RoleUser, Content: message},
		ai.Turn{Role: domain.RoleAssistant, Content: reply.Content},
	)

	return &Exchange{
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Reply:            reply,
	}, nil
}

// persistAssistant stores the assistant message, bumps the conversation's
// counters for the exchange, and auto-titles in the same transaction.
func (s *ChatService) persistAssistant(ctx context.Context, conv *domain.Conversation, message string, reply ai.Reply) (*domain.Message, error) {
	var assistantMsg *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tokens *int
		if reply.TokensUsed > 0 {
			t := reply.TokensUsed
			tokens = &t
		}
		m, err := repo.CreateMessage(tx, conv.ID, domain.RoleAssistant, reply.Content, tokens, reply.Model)
		if err != nil {
			return err
		}
		assistantMsg = m

		if err := repo.TouchConversation(ctx, tx, conv.ID, 2); err != nil {
			return err
		}

		// Auto-title if placeholder
		if s.shouldAutoTitle(conv.Title) {
			gen := s.generateTitle(message)
			if gen != "" {
				gen = s.clipTitle(gen)
				// Best effort: a failed title update must not void the exchange.
				if uerr := repo.UpdateConversationTitle(ctx, tx, conv.ID, conv.StudentID, gen); uerr == nil {
					conv.Title = gen
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assistantMsg, nil
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *ChatService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitle derives a concise title from the first user message.
func (s *ChatService) generateTitle(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}
	toks := titleWordRE.FindAllString(strings.ToLower(message), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.titleLocaleOrDefault())
	out := make([]string, 0, 8)

	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a generated title to the configured maximum rune length.
func (s *ChatService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

func (s *ChatService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// trimTrailing drops extra from the tail of turns when the cache already
// holds the turns of the in-flight exchange.
func trimTrailing(turns, extra []ai.Turn) []ai.Turn {
	if len(extra) == 0 || len(turns) < len(extra) {
		return turns
	}
	tail := turns[len(turns)-len(extra):]
	for i := range tail {
		if tail[i] != extra[i] {
			return turns
		}
	}
	return turns[:len(turns)-len(extra)]
}

// --- Title generation helpers ---

// Extract Unicode letters with optional trailing numbers (e.g., "week2").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
}
