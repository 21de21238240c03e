// Package modules implements the pluggable command system. Every inbound
// message flows through each registered module's Process hook; messages
// starting with the command prefix are additionally parsed and dispatched
// through a flat command-name registry.
package modules

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/logger"
)

// ---------------------------------------------------------------------------
// Module contract
// ---------------------------------------------------------------------------

// CommandContext carries one parsed command invocation.
type CommandContext struct {
	Message *message.Message
	Command string
	Args    []string
	RawArgs string
}

// HandlerFunc executes a command.
type HandlerFunc func(ctx context.Context, cc *CommandContext) error

// Command declares one command a module contributes to the registry.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Handler     HandlerFunc
}

// Module is a user-defined message processor with optional commands.
type Module interface {
	// Name identifies the module in logs and the registry.
	Name() string
	// Commands returns the commands this module contributes.
	Commands() []Command
	// Process observes every inbound message, command or not. Errors are
	// logged and reported on the bus; they never stop the pipeline.
	Process(ctx context.Context, msg *message.Message) error
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

type registeredCommand struct {
	cmd    Command
	module string
	// canonical marks the primary name entry (aliases share the Command).
	canonical bool
}

// Manager owns the module list and the flat command registry, and forwards
// the message-created stream through both.
type Manager struct {
	prefix string
	bus    domain.EventBus

	mu          sync.RWMutex
	selfID      domain.EntityID
	modules     []Module
	registry    map[string]*registeredCommand
	order       []string // canonical command names in registration order
	unsubscribe func()
}

// NewManager creates a manager dispatching commands marked by prefix.
func NewManager(bus domain.EventBus, prefix string) *Manager {
	return &Manager{
		prefix:   prefix,
		bus:      bus,
		registry: make(map[string]*registeredCommand),
	}
}

// SetSelf tells the manager which author to ignore. Without it the bot
// processes its own sent-message confirmations and loops.
func (m *Manager) SetSelf(id domain.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfID = id
}

// Register adds a module and merges its commands into the registry.
// Duplicate command or alias names across modules are a registration error.
func (m *Manager) Register(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.modules {
		if existing.Name() == mod.Name() {
			return fmt.Errorf("modules: module %q already registered", mod.Name())
		}
	}

	cmds := mod.Commands()
	// Validate the whole contribution before mutating the registry.
	seen := make(map[string]bool)
	for _, cmd := range cmds {
		names := append([]string{cmd.Name}, cmd.Aliases...)
		for _, name := range names {
			key := strings.ToLower(name)
			if key == "" {
				return fmt.Errorf("modules: module %q declares an empty command name", mod.Name())
			}
			if seen[key] {
				return fmt.Errorf("modules: module %q declares %q twice", mod.Name(), key)
			}
			if existing, ok := m.registry[key]; ok {
				return fmt.Errorf("modules: command %q already taken by module %q", key, existing.module)
			}
			seen[key] = true
		}
	}

	for _, cmd := range cmds {
		key := strings.ToLower(cmd.Name)
		m.registry[key] = &registeredCommand{cmd: cmd, module: mod.Name(), canonical: true}
		m.order = append(m.order, key)
		for _, alias := range cmd.Aliases {
			m.registry[strings.ToLower(alias)] = &registeredCommand{cmd: cmd, module: mod.Name()}
		}
	}
	m.modules = append(m.modules, mod)

	logger.InfoCF("modules", "Module registered", map[string]interface{}{
		"module":   mod.Name(),
		"commands": len(cmds),
	})
	return nil
}

// Start subscribes the manager to the message-created stream.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = m.bus.Subscribe(domain.EventMessageCreated, func(ev domain.Event) {
		msg, ok := ev.Payload().(*message.Message)
		if !ok {
			return
		}
		m.handle(context.Background(), msg)
	})
	logger.InfoCF("modules", "Module pipeline started", map[string]interface{}{
		"modules": len(m.modules),
		"prefix":  m.prefix,
	})
}

// Stop detaches the manager from the stream.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// handle runs the process pipeline, then command dispatch.
func (m *Manager) handle(ctx context.Context, msg *message.Message) {
	m.mu.RLock()
	selfID := m.selfID
	mods := make([]Module, len(m.modules))
	copy(mods, m.modules)
	m.mu.RUnlock()

	if !selfID.IsZero() && msg.AuthorID() == selfID {
		return
	}

	for _, mod := range mods {
		if err := mod.Process(ctx, msg); err != nil {
			logger.ErrorCF("modules", "Module process failed", map[string]interface{}{
				"module": mod.Name(),
				"item":   msg.ID().String(),
				"error":  err.Error(),
			})
			m.bus.Publish(domain.NewEvent(domain.EventModuleError, msg.ID(), map[string]interface{}{
				"module": mod.Name(),
				"error":  err.Error(),
			}))
		}
	}

	cc, ok := m.parse(msg)
	if !ok {
		return
	}

	m.mu.RLock()
	reg, found := m.registry[cc.Command]
	m.mu.RUnlock()
	if !found {
		// Unknown commands are intentionally silent.
		return
	}

	if err := reg.cmd.Handler(ctx, cc); err != nil {
		logger.ErrorCF("modules", "Command failed", map[string]interface{}{
			"command": cc.Command,
			"module":  reg.module,
			"error":   err.Error(),
		})
		m.bus.Publish(domain.NewEvent(domain.EventModuleError, msg.ID(), map[string]interface{}{
			"module":  reg.module,
			"command": cc.Command,
			"error":   err.Error(),
		}))
		return
	}

	m.bus.Publish(domain.NewEvent(domain.EventCommandExecuted, msg.ID(), map[string]interface{}{
		"command": cc.Command,
		"module":  reg.module,
		"chat_id": msg.ChatID().String(),
	}))
}

// parse splits "<prefix><command> arg arg ..." into a CommandContext.
func (m *Manager) parse(msg *message.Message) (*CommandContext, bool) {
	if msg.Kind() != domain.KindText {
		return nil, false
	}
	text := strings.TrimSpace(msg.Text())
	if !strings.HasPrefix(text, m.prefix) {
		return nil, false
	}
	body := strings.TrimPrefix(text, m.prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil, false
	}

	name := strings.ToLower(fields[0])
	raw := strings.TrimSpace(strings.TrimPrefix(body, fields[0]))
	return &CommandContext{
		Message: msg,
		Command: name,
		Args:    fields[1:],
		RawArgs: raw,
	}, true
}

// Commands returns the canonical commands in registration order.
func (m *Manager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.registry[key].cmd)
	}
	return out
}

// Lookup resolves a command name or alias.
func (m *Manager) Lookup(name string) (Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.registry[strings.ToLower(name)]
	if !ok {
		return Command{}, false
	}
	return reg.cmd, true
}

// Modules returns the registered module names in order.
func (m *Manager) Modules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod.Name())
	}
	return out
}

// Prefix returns the configured command prefix.
func (m *Manager) Prefix() string { return m.prefix }
