package imageprocessing

import (
	"fmt"
	"slices"
	"strings"
)

// Command is one step of the import pipeline. It receives a segment's encoded
// bytes and returns the bytes handed to the next step.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory builds a step from the params of an importCommands entry.
type CommandFactory func(params map[string]any) (Command, error)

// CommandRegistry maps importCommands names to step factories.
type CommandRegistry struct {
	factories map[string]CommandFactory
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{factories: map[string]CommandFactory{}}
}

// Register fails for an empty name, a nil factory or a name already taken.
func (r *CommandRegistry) Register(name string, factory CommandFactory) error {
	switch {
	case name == "":
		return fmt.Errorf("import step needs a name")
	case factory == nil:
		return fmt.Errorf("import step %s has no factory", name)
	case r.factories[name] != nil:
		return fmt.Errorf("import step %s registered twice", name)
	}
	r.factories[name] = factory
	return nil
}

// Create builds the step an importCommands entry names.
func (r *CommandRegistry) Create(name string, params map[string]any) (Command, error) {
	factory := r.factories[name]
	if factory == nil {
		return nil, fmt.Errorf("unknown import step %q, expected one of %s", name, strings.Join(r.Names(), ", "))
	}
	command, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("import step %s: %w", name, err)
	}
	return command, nil
}

// Names lists the registered steps alphabetically.
func (r *CommandRegistry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRegistry holds the built-in steps. Each registers itself from init.
var DefaultRegistry = NewCommandRegistry()

// CommandConfig is one importCommands entry.
type CommandConfig struct {
	Name   string
	Params map[string]any
}

// commandParams reads values out of an importCommands entry. YAML yields int
// for numbers while JSON yields float64.
type commandParams map[string]any

func (p commandParams) stringOr(key, fallback string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return fallback
}

func (p commandParams) intOr(key string, fallback int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func (p commandParams) require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if _, ok := p[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameter: %s", strings.Join(missing, ", "))
	}
	return nil
}
