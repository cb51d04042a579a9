package util

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
)

// ContextWithSignal returns a context canceled when one of given signals is received.
func ContextWithSignal(parent context.Context, sig ...os.Signal) (context.Context, context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sig...)

	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case s := <-sigChan:
			log.Warn().Stringer("signal", s).Msg("received during execution, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
