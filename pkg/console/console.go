// Package console provides an interactive operator REPL. Plain lines are sent
// as text into the active chat; slash commands inspect and drive the client.
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/openig/igbot/pkg/cache"
	"github.com/openig/igbot/pkg/client"
	"github.com/openig/igbot/pkg/collector"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/logger"
)

// Console is the operator REPL.
type Console struct {
	client *client.Client
	active domain.EntityID
	out    io.Writer
}

// New creates a console. defaultChatID may be empty; /use selects one later.
func New(c *client.Client, defaultChatID string) *Console {
	return &Console{
		client: c,
		active: domain.EntityID(defaultChatID),
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("/status"),
		readline.PcItem("/chats"),
		readline.PcItem("/use"),
		readline.PcItem("/history"),
		readline.PcItem("/collect"),
		readline.PcItem("/quit"),
	)
}

// Run reads lines until /quit, EOF, or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "igbot> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
		AutoComplete:    completer(),
	})
	if err != nil {
		return fmt.Errorf("console: init readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil { // io.EOF or closed by ctx
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		c.dispatch(ctx, line)
	}
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) dispatch(ctx context.Context, line string) {
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/status":
		c.showStatus()
	case "/chats":
		c.showChats()
	case "/use":
		c.useChat(fields[1:])
	case "/history":
		c.showHistory()
	case "/collect":
		c.collect(ctx, fields[1:])
	default:
		c.printf("unknown command %s", fields[0])
	}
}

func (c *Console) send(ctx context.Context, text string) {
	if c.active.IsZero() {
		c.printf("no active chat; pick one with /use <chat-id>")
		return
	}
	if _, err := c.client.SendText(ctx, c.active, text); err != nil {
		c.printf("send failed: %v", err)
	}
}

func (c *Console) showStatus() {
	st := c.client.Status()
	c.printf("user=%s (%s) state=%s chats=%d users=%d messages=%d",
		st.Username, st.UserID, st.State, st.Chats, st.Users, st.Messages)
}

func (c *Console) showChats() {
	for _, ch := range c.client.Chats.Array() {
		marker := " "
		if ch.ID() == c.active {
			marker = "*"
		}
		c.printf("%s %s  %q  participants=%d messages=%d",
			marker, ch.ID(), ch.Title(), len(ch.UserIDs()), ch.Messages.Len())
	}
	if c.client.Chats.Len() == 0 {
		c.printf("no chats cached; is the realtime link up?")
	}
}

func (c *Console) useChat(args []string) {
	if len(args) != 1 {
		c.printf("usage: /use <chat-id>")
		return
	}
	id := domain.EntityID(args[0])
	if !c.client.Chats.Has(id) {
		c.printf("warning: chat %s not cached yet", id)
	}
	c.active = id
	c.printf("active chat is now %s", id)
}

func (c *Console) showHistory() {
	if c.active.IsZero() {
		c.printf("no active chat")
		return
	}
	ch, ok := c.client.Chats.Get(c.active)
	if !ok {
		c.printf("chat %s not cached", c.active)
		return
	}
	msgs := ch.Messages.Array()
	if len(msgs) == 0 {
		c.printf("no messages cached for %s", c.active)
		return
	}
	for _, m := range msgs {
		c.printf("[%s] %s: %s", m.Timestamp().Time.Format("15:04:05"), m.AuthorID(), renderText(m))
	}
}

func renderText(m *message.Message) string {
	if m.HasText() {
		return m.Text()
	}
	return "<" + m.Kind().String() + ">"
}

// collect runs a bounded collector on the active chat and prints the result.
func (c *Console) collect(ctx context.Context, args []string) {
	if c.active.IsZero() {
		c.printf("no active chat")
		return
	}
	if len(args) != 2 {
		c.printf("usage: /collect <max> <seconds>")
		return
	}
	max, err1 := strconv.Atoi(args[0])
	secs, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || max < 0 || secs <= 0 {
		c.printf("usage: /collect <max> <seconds>")
		return
	}

	ch, err := c.client.Chat(ctx, c.active)
	if err != nil {
		c.printf("collect failed: %v", err)
		return
	}
	col, err := ch.NewCollector(collector.Options{
		Max:  max,
		Time: time.Duration(secs) * time.Second,
	})
	if err != nil {
		c.printf("collect failed: %v", err)
		return
	}

	c.printf("collecting on %s (max=%d, window=%ds)...", c.active, max, secs)
	col.OnEnd(func(collected *cache.Store[domain.EntityID, *message.Message], reason domain.StopReason) {
		c.printf("collector ended (%s): %d message(s)", reason, collected.Len())
		for _, m := range collected.Array() {
			c.printf("  %s: %s", m.AuthorID(), renderText(m))
		}
	})
}

// RunBackground launches Run on its own goroutine, logging the eventual error.
func (c *Console) RunBackground(ctx context.Context) {
	go func() {
		if err := c.Run(ctx); err != nil {
			logger.ErrorCF("console", "Console exited", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}
