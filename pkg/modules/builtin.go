package modules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openig/igbot/pkg/domain/message"
)

// ---------------------------------------------------------------------------
// Built-in modules — small, and double as examples for module authors
// ---------------------------------------------------------------------------

// PingModule answers "ping" with the observed delivery latency.
type PingModule struct{}

func (PingModule) Name() string { return "ping" }

func (PingModule) Process(ctx context.Context, msg *message.Message) error { return nil }

func (PingModule) Commands() []Command {
	return []Command{{
		Name:        "ping",
		Description: "Round-trip check; replies with delivery latency",
		Handler: func(ctx context.Context, cc *CommandContext) error {
			latency := time.Since(cc.Message.Timestamp().Time).Round(time.Millisecond)
			_, err := cc.Message.Reply(ctx, fmt.Sprintf("pong (%s)", latency))
			return err
		},
	}}
}

// EchoModule repeats the command arguments back into the chat.
type EchoModule struct{}

func (EchoModule) Name() string { return "echo" }

func (EchoModule) Process(ctx context.Context, msg *message.Message) error { return nil }

func (EchoModule) Commands() []Command {
	return []Command{{
		Name:        "echo",
		Aliases:     []string{"say"},
		Description: "Repeats the given text",
		Handler: func(ctx context.Context, cc *CommandContext) error {
			if cc.RawArgs == "" {
				return nil
			}
			_, err := cc.Message.Reply(ctx, cc.RawArgs)
			return err
		},
	}}
}

// HelpModule lists every registered command.
type HelpModule struct {
	manager *Manager
}

// NewHelpModule creates the help module bound to a manager's registry.
func NewHelpModule(m *Manager) *HelpModule {
	return &HelpModule{manager: m}
}

func (h *HelpModule) Name() string { return "help" }

func (h *HelpModule) Process(ctx context.Context, msg *message.Message) error { return nil }

func (h *HelpModule) Commands() []Command {
	return []Command{{
		Name:        "help",
		Aliases:     []string{"commands"},
		Description: "Lists available commands",
		Handler: func(ctx context.Context, cc *CommandContext) error {
			var b strings.Builder
			b.WriteString("Commands:\n")
			for _, cmd := range h.manager.Commands() {
				b.WriteString(h.manager.Prefix())
				b.WriteString(cmd.Name)
				if len(cmd.Aliases) > 0 {
					fmt.Fprintf(&b, " (%s)", strings.Join(cmd.Aliases, ", "))
				}
				if cmd.Description != "" {
					b.WriteString(" — ")
					b.WriteString(cmd.Description)
				}
				b.WriteString("\n")
			}
			_, err := cc.Message.Reply(ctx, strings.TrimRight(b.String(), "\n"))
			return err
		},
	}}
}
