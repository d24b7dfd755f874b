// Package chat parses "/"-prefixed chat messages against a registered
// command table and dispatches them.
package chat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyName        = errors.New("chat: command name must not be empty")
	ErrRequiredAfterOpt = errors.New("chat: required parameter cannot follow an optional one")
	ErrRestNotLast      = errors.New("chat: rest parameter must be last")
	ErrBadParamSyntax   = errors.New("chat: parameter must be <name> or [name]")
)

// Param is one declared command parameter. A rest parameter consumes all
// remaining tokens joined by single spaces.
type Param struct {
	Name     string
	Required bool
	Rest     bool
}

// Command is one registered chat command.
type Command struct {
	Name        string
	Params      []Param
	Description string
	Handler     Handler
}

// Handler runs a dispatched command. Returning a CallError relays the text
// to the caller; any other error is logged and swallowed.
type Handler func(ctx *Context, args map[string]string) error

// CallError is a user-facing command failure.
type CallError struct {
	msg string
}

func (e *CallError) Error() string { return e.msg }

// Callf builds a user-facing command error.
func Callf(format string, args ...any) error {
	return &CallError{msg: fmt.Sprintf(format, args...)}
}

// ParseUsage splits a usage string like "kick <name> [reason...]" into the
// command name and its parameter list.
func ParseUsage(usage string) (string, []Param, error) {
	fields := strings.Fields(usage)
	if len(fields) == 0 || fields[0] == "" {
		return "", nil, ErrEmptyName
	}
	name := fields[0]
	if strings.ContainsAny(name, "<[") {
		return "", nil, ErrEmptyName
	}

	var params []Param
	sawOptional := false
	for i, f := range fields[1:] {
		var p Param
		switch {
		case strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">"):
			p = Param{Name: f[1 : len(f)-1], Required: true}
		case strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]"):
			p = Param{Name: f[1 : len(f)-1]}
		default:
			return "", nil, fmt.Errorf("%w: %q", ErrBadParamSyntax, f)
		}
		if strings.HasSuffix(p.Name, "...") {
			p.Name = strings.TrimSuffix(p.Name, "...")
			p.Rest = true
		}
		if p.Name == "" {
			return "", nil, fmt.Errorf("%w: %q", ErrBadParamSyntax, f)
		}
		if p.Required && sawOptional {
			return "", nil, ErrRequiredAfterOpt
		}
		if !p.Required {
			sawOptional = true
		}
		if p.Rest && i != len(fields[1:])-1 {
			return "", nil, ErrRestNotLast
		}
		params = append(params, p)
	}
	return name, params, nil
}

// RenderUsage reproduces the usage string the command was registered with.
func (c *Command) RenderUsage() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, p := range c.Params {
		b.WriteByte(' ')
		name := p.Name
		if p.Rest {
			name += "..."
		}
		if p.Required {
			b.WriteString("<" + name + ">")
		} else {
			b.WriteString("[" + name + "]")
		}
	}
	return b.String()
}

// Tokenize splits a command line. Single quotes toggle in-string mode and
// are stripped; outside a string an ASCII space separates tokens. Empty
// trailing tokens are discarded.
func Tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	inString := false
	flush := func() {
		tokens = append(tokens, cur.String())
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case r == '\'':
			inString = !inString
		case r == ' ' && !inString:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	for len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}
