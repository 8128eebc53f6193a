package decorator

import (
	"context"

	"github.com/programme-lv/handin/logger"
)

// P - params
type CmdHandler[P any] interface {
	Handle(ctx context.Context, p P) error
}

// Q - query, R - result
type QueryHandler[Q any, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// CmdHandlerFunc lets a plain function serve as a command handler.
type CmdHandlerFunc[P any] func(ctx context.Context, p P) error

func (f CmdHandlerFunc[P]) Handle(ctx context.Context, p P) error {
	return f(ctx, p)
}

// WithCmdLogging logs the outcome of every command handled by h.
func WithCmdLogging[P any](name string, h CmdHandler[P]) CmdHandler[P] {
	return CmdHandlerFunc[P](func(ctx context.Context, p P) error {
		err := h.Handle(ctx, p)
		log := logger.FromContext(ctx)
		if err != nil {
			log.Warn("command failed", "command", name, "error", err)
		} else {
			log.Info("command handled", "command", name)
		}
		return err
	})
}
