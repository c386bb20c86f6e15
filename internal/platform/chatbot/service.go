package chatbot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
)

// maxMessagesPerSession caps how many turns one visit's session can hold.
const maxMessagesPerSession = 40

// sessionTTL is how long an idle session is kept before eviction.
const sessionTTL = 4 * time.Hour

type session struct {
	messages []Message
	lastSeen time.Time
}

// Service keeps per-visit conversation state and delegates replies to the LLM.
type Service struct {
	llm     Client
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewService(llm Client, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		llm:      llm,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Start opens a session for a visit and returns the greeting.
func (s *Service) Start(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictStale()
	s.sessions[sessionID] = &session{
		messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "assistant", Content: FirstMessage},
		},
		lastSeen: time.Now(),
	}
	return FirstMessage
}

// Reply appends the patient's message to the session history and returns the
// assistant's answer. A generic fallback is returned when the LLM call fails,
// so the patient always gets a response.
func (s *Service) Reply(ctx context.Context, sessionID, message string) (string, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{
			messages: []Message{{Role: "system", Content: systemPrompt}},
		}
		s.sessions[sessionID] = sess
	}
	sess.lastSeen = time.Now()

	if len(sess.messages) >= maxMessagesPerSession {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.ChatbotRequests.WithLabelValues("capped").Inc()
		}
		return CapMessage, nil
	}

	sess.messages = append(sess.messages, Message{Role: "user", Content: message})
	history := make([]Message, len(sess.messages))
	copy(history, sess.messages)
	s.mu.Unlock()

	reply, err := s.llm.Chat(ctx, history)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("chatbot: llm call failed")
		if s.metrics != nil {
			s.metrics.ChatbotRequests.WithLabelValues("fallback").Inc()
		}
		return FallbackMessage, nil
	}

	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.messages = append(sess.messages, Message{Role: "assistant", Content: reply})
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ChatbotRequests.WithLabelValues("ok").Inc()
	}
	return reply, nil
}

// History returns a copy of the session's transcript, excluding the system
// prompt, for practitioner review.
func (s *Service) History(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	out := make([]Message, 0, len(sess.messages))
	for _, m := range sess.messages {
		if m.Role == "system" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// End discards a session once the visit is over.
func (s *Service) End(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// evictStale drops sessions idle past the TTL. Callers must hold mu.
func (s *Service) evictStale() {
	cutoff := time.Now().Add(-sessionTTL)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
