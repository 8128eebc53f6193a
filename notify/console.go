package notify

import (
	"context"
	"log/slog"
	"sync"
)

type Message struct {
	To      []string
	Subject string
	HTML    string
}

// ConsoleSender logs messages instead of delivering them and keeps
// a copy of each one. Used for local runs and tests.
type ConsoleSender struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message

	// Fail, when set, is called first; a non-nil result is returned
	// and the message is not recorded.
	Fail func(msg Message) error
}

var _ Sender = (*ConsoleSender)(nil)

func NewConsoleSender(logger *slog.Logger) *ConsoleSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, recipients []string, subject string, htmlBody string) error {
	msg := Message{
		To:      append([]string(nil), recipients...),
		Subject: subject,
		HTML:    htmlBody,
	}
	if s.Fail != nil {
		if err := s.Fail(msg); err != nil {
			return err
		}
	}
	s.logger.Info("email", "to", recipients, "subject", subject, "html_bytes", len(htmlBody))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
