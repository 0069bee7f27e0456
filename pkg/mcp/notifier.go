package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowrun/internal/streaming"
)

const runEventMethod = "notifications/message"

type notificationSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// notifier pushes the events of a run to the MCP session that started it.
type notifier struct {
	sender notificationSender
	hub    streaming.EventHub
	logger *slog.Logger
}

func newNotifier(sender notificationSender, hub streaming.EventHub, logger *slog.Logger) *notifier {
	return &notifier{sender: sender, hub: hub, logger: logger}
}

// follow forwards the events of runID to sessionID until the returned stop
// function is called. stop drains what was already published before returning.
func (n *notifier) follow(ctx context.Context, runID, sessionID string) (stop func()) {
	ch, cancel, err := n.hub.Subscribe(ctx, streaming.EventFilter{RunID: runID})
	if err != nil {
		n.logger.WarnContext(ctx, "run event subscription failed", slog.String("error", err.Error()))
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		connected := true
		for event := range ch {
			if !connected {
				continue
			}
			err := n.sender.SendNotificationToSpecificClient(sessionID, runEventMethod, map[string]any{
				"level":  "info",
				"logger": "flowrun",
				"data":   event,
			})
			if errors.Is(err, server.ErrSessionNotFound) {
				// Client went away; drain the rest without sending.
				connected = false
			} else if err != nil {
				n.logger.WarnContext(ctx, "run event notification failed", slog.String("error", err.Error()))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
