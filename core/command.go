package core

import (
	"errors"
	"sync"

	"pinguino/protocol"
)

// CommandHandler decodes its own arguments from data
type CommandHandler func(data *[]byte) error

// Command is one entry of the message table. Responses (MCU to host) have
// a nil handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string
	Handler CommandHandler
}

var ErrUnknownCommand = errors.New("unknown command")

// CommandRegistry assigns sequential ids in registration order
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	nameToID map[string]uint16
}

var globalRegistry = NewCommandRegistry()

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{nameToID: make(map[string]uint16)}
}

// Register adds a message and returns its id. Registering a name twice
// replaces the handler and keeps the id.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.nameToID[name]; ok {
		r.commands[id].Handler = handler
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{ID: id, Name: name, Format: format, Handler: handler})
	r.nameToID[name] = id
	return id
}

// RegisterTable registers every message of a table in order, taking
// handlers from the map by name.
func (r *CommandRegistry) RegisterTable(table []protocol.MessageFormat, handlers map[string]CommandHandler) {
	for _, m := range table {
		r.Register(m.Name, m.Params, handlers[m.Name])
	}
}

func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Dispatch runs the handler of a command. Responses cannot be dispatched.
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(id)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}
	return cmd.Handler(data)
}

// Split returns the dictionary lines of commands and responses
func (r *CommandRegistry) Split() (commands, responses []*Command) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.commands {
		if c.Handler != nil {
			commands = append(commands, c)
		} else {
			responses = append(responses, c)
		}
	}
	return commands, responses
}

// Line renders "name format"
func (c *Command) Line() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// DispatchCommand dispatches through the global registry
func DispatchCommand(id uint16, data *[]byte) error {
	return globalRegistry.Dispatch(id, data)
}

// GetGlobalRegistry returns the registry the firmware transport uses
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
