package chat

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/ILikePlayingGames/Hindenburg/server/rooms"
	"github.com/rs/zerolog"
)

// Context is what a command handler sees: where the command came from and a
// reply channel that reaches only the caller.
type Context struct {
	Room    *rooms.Room
	Player  *clients.Connection
	Message string

	reply func(text string) error
}

// Reply sends text back to the caller only, marked so the client renders it
// apart from normal chat.
func (c *Context) Reply(text string) error {
	return c.reply(text)
}

// Registry is the command table.
type Registry struct {
	commands map[string]*Command
	logger   zerolog.Logger
}

// NewRegistry builds a command table with the built-in help command
// registered.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		logger:   logger.With().Str("com", "chat").Logger(),
	}
	if err := r.Register("help [command]", "List all commands, or show one in detail", r.helpCommand); err != nil {
		panic(err)
	}
	return r
}

// Register parses a usage string and adds the command to the table.
func (r *Registry) Register(usage, description string, handler Handler) error {
	name, params, err := ParseUsage(usage)
	if err != nil {
		return err
	}
	r.commands[name] = &Command{
		Name:        name,
		Params:      params,
		Description: description,
		Handler:     handler,
	}
	return nil
}

// Commands snapshots the table sorted by name.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewContext binds a dispatch context to its reply channel.
func NewContext(room *rooms.Room, player *clients.Connection, message string, reply func(string) error) *Context {
	return &Context{Room: room, Player: player, Message: message, reply: reply}
}

// Dispatch tokenizes a command line (without the leading "/"), binds tokens
// to the named command's parameters and invokes its handler.
func (r *Registry) Dispatch(ctx *Context, line string) {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return
	}
	name := tokens[0]
	cmd, ok := r.commands[name]
	if !ok {
		r.sendReply(ctx, "No command with name: "+name)
		return
	}

	args := make(map[string]string)
	rest := tokens[1:]
	for _, p := range cmd.Params {
		if p.Rest {
			if len(rest) > 0 {
				args[p.Name] = strings.Join(rest, " ")
				rest = nil
			} else if p.Required {
				r.sendReply(ctx, r.usageReply(cmd))
				return
			}
			break
		}
		if len(rest) == 0 {
			if p.Required {
				r.sendReply(ctx, r.usageReply(cmd))
				return
			}
			break
		}
		args[p.Name] = rest[0]
		rest = rest[1:]
	}

	if err := cmd.Handler(ctx, args); err != nil {
		var callErr *CallError
		if errors.As(err, &callErr) {
			r.sendReply(ctx, callErr.Error())
			return
		}
		r.logger.Error().Err(err).Str("command", name).Msg("command handler failed")
	}
}

func (r *Registry) usageReply(cmd *Command) string {
	return fmt.Sprintf("Usage: /%s: %s", cmd.RenderUsage(), cmd.Description)
}

func (r *Registry) sendReply(ctx *Context, text string) {
	if err := ctx.Reply(text); err != nil {
		r.logger.Warn().Err(err).Msg("command reply failed")
	}
}

func (r *Registry) helpCommand(ctx *Context, args map[string]string) error {
	if name, ok := args["command"]; ok {
		cmd, found := r.commands[name]
		if !found {
			return Callf("No command with name: %s", name)
		}
		return ctx.Reply(r.usageReply(cmd))
	}
	var b strings.Builder
	b.WriteString("Commands:")
	for _, cmd := range r.Commands() {
		b.WriteString("\n/" + cmd.RenderUsage() + ": " + cmd.Description)
	}
	return ctx.Reply(b.String())
}
