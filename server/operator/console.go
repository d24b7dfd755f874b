package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ILikePlayingGames/Hindenburg/tools"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Console reads operator commands line by line and answers on its writer.
type Console struct {
	backend Backend
	out     io.Writer
	logger  zerolog.Logger
}

func NewConsole(backend Backend, out io.Writer, logger zerolog.Logger) *Console {
	return &Console{
		backend: backend,
		out:     out,
		logger:  logger.With().Str("com", "operator").Logger(),
	}
}

// Run serves the console until the reader ends or the context is canceled.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.Exec(line)
	}
	return scanner.Err()
}

// Exec runs a single operator command line.
func (c *Console) Exec(line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	c.logger.Debug().Str("command", cmd).Msg("operator command")
	var err error
	switch cmd {
	case "dc":
		err = c.cmdDisconnect(args)
	case "destroy":
		err = c.cmdDestroy(args)
	case "load":
		err = c.cmdLoad(args)
	case "unload":
		err = c.cmdUnload(args)
	case "list":
		err = c.cmdList(args)
	case "broadcast":
		err = c.cmdBroadcast(args)
	case "mem":
		err = c.cmdMem()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

// cmdDisconnect handles:
//
//	dc --clientid 3 | --username bob | --address 1.2.3.4 | --room ABCDEF
//	   [--reason <text>] [--ban <minutes>]
func (c *Console) cmdDisconnect(args []string) error {
	var filter DisconnectFilter
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	if v, ok := flags["clientid"]; ok {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("bad client id %q", v)
		}
		filter.ClientID = int32(id)
	}
	filter.Username = flags["username"]
	filter.Address = flags["address"]
	filter.Room = flags["room"]
	filter.Reason = flags["reason"]
	if v, ok := flags["ban"]; ok {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes < 0 {
			return fmt.Errorf("bad ban duration %q", v)
		}
		filter.BanMinutes = minutes
	}
	if filter.ClientID == 0 && filter.Username == "" && filter.Address == "" && filter.Room == "" {
		return fmt.Errorf("dc needs at least one of --clientid, --username, --address, --room")
	}
	n, err := c.backend.DisconnectClients(filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "disconnected %d client(s)\n", n)
	return nil
}

func (c *Console) cmdDestroy(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: destroy <code> [--reason <text>]")
	}
	flags, err := parseFlags(args[1:])
	if err != nil {
		return err
	}
	if err := c.backend.DestroyRoom(args[0], flags["reason"]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "destroyed %s\n", strings.ToUpper(args[0]))
	return nil
}

func (c *Console) cmdLoad(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load <path>")
	}
	return c.backend.LoadPlugin(args[0])
}

func (c *Console) cmdUnload(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: unload <plugin-id>")
	}
	return c.backend.UnloadPlugin(args[0])
}

func (c *Console) cmdList(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: list clients|rooms|plugins|mods <id>|players <code>|pov <code>")
	}
	switch args[0] {
	case "clients":
		return printRows(c, c.backend.ListClients())
	case "rooms":
		return printRows(c, c.backend.ListRooms())
	case "plugins":
		return printRows(c, c.backend.ListPlugins())
	case "mods":
		if len(args) != 2 {
			return fmt.Errorf("usage: list mods <client-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("bad client id %q", args[1])
		}
		rows, err := c.backend.ListMods(int32(id))
		if err != nil {
			return err
		}
		return printRows(c, rows)
	case "players":
		if len(args) != 2 {
			return fmt.Errorf("usage: list players <code>")
		}
		rows, err := c.backend.ListPlayers(args[1])
		if err != nil {
			return err
		}
		return printRows(c, rows)
	case "pov":
		if len(args) != 2 {
			return fmt.Errorf("usage: list pov <code>")
		}
		rows, err := c.backend.ListPerspectives(args[1])
		if err != nil {
			return err
		}
		return printRows(c, rows)
	default:
		return fmt.Errorf("unknown listing %q", args[0])
	}
}

// printRows emits one JSON object per line, the machine-friendly format
// operator tooling scrapes.
func printRows[T any](c *Console, rows []T) error {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "(none)")
		return nil
	}
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, string(data))
	}
	return nil
}

func (c *Console) cmdBroadcast(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	var words []string
	for _, a := range args {
		if strings.HasPrefix(a, "--") {
			break
		}
		words = append(words, a)
	}
	if len(words) == 0 {
		return fmt.Errorf("usage: broadcast <text> [--room <code>]")
	}
	return c.backend.BroadcastChat(strings.Join(words, " "), flags["room"])
}

func (c *Console) cmdMem() error {
	stats := c.backend.MemStats()
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(data))
	fmt.Fprintf(c.out, "heap %s, sys %s\n", tools.FormatBytes(stats.AllocBytes), tools.FormatBytes(stats.SysBytes))
	return nil
}

// parseFlags reads trailing "--name value" pairs.
func parseFlags(args []string) (map[string]string, error) {
	flags := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "--") {
			continue
		}
		name := strings.TrimPrefix(args[i], "--")
		if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
			return nil, fmt.Errorf("flag --%s needs a value", name)
		}
		flags[name] = args[i+1]
		i++
	}
	return flags, nil
}
