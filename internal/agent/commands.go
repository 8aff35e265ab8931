package agent

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benmeehan/grid-agent/internal/constants"
)

type command struct {
	arities []int // accepted argument counts
	usage   string
	help    string
	run     func(a *Agent, ctx context.Context, args []string) (string, error)
}

func (c command) accepts(n int) bool {
	for _, a := range c.arities {
		if a == n {
			return true
		}
	}
	return false
}

var commandTable map[string]command

func init() {
	commandTable = map[string]command{
		"run": {
			arities: []int{0},
			usage:   "run",
			help:    "Start the device layer",
			run: func(a *Agent, _ context.Context, _ []string) (string, error) {
				if err := a.run(); err != nil {
					return "", err
				}
				return fmt.Sprintf("agent running, %d device(s) attached", a.layer.registry.Len()), nil
			},
		},
		"connect": {
			arities: []int{2},
			usage:   "connect <ip> <port>",
			help:    "Connect to the control plane",
			run: func(a *Agent, ctx context.Context, args []string) (string, error) {
				ip, port, err := parseAddress(args[0], args[1])
				if err != nil {
					return "", err
				}
				if err := a.connect(ctx, ip, port); err != nil {
					return "", err
				}
				return "connected to " + a.State().Address(), nil
			},
		},
		"disconnect": {
			arities: []int{0},
			usage:   "disconnect",
			help:    "Close the control plane session and keep the devices",
			run: func(a *Agent, _ context.Context, _ []string) (string, error) {
				if err := a.disconnect(); err != nil {
					return "", err
				}
				return "disconnected", nil
			},
		},
		"stop": {
			arities: []int{0},
			usage:   "stop",
			help:    "Disconnect and release every device",
			run: func(a *Agent, _ context.Context, _ []string) (string, error) {
				if err := a.stop(); err != nil {
					return "", err
				}
				return "agent stopped", nil
			},
		},
		"exit": {
			arities: []int{0},
			usage:   "exit",
			help:    "Stop the agent and quit",
			run: func(a *Agent, _ context.Context, _ []string) (string, error) {
				if a.State().Kind != Stopped {
					_ = a.stop()
				}
				return "bye", ErrExit
			},
		},
		"devices": {
			arities: []int{0},
			usage:   "devices",
			help:    "List the attached devices",
			run:     (*Agent).devicesCommand,
		},
		"status": {
			arities: []int{0},
			usage:   "status",
			help:    "Show the agent state",
			run:     (*Agent).statusCommand,
		},
		"uptime": {
			arities: []int{0},
			usage:   "uptime",
			help:    "Show agent and host uptime",
			run:     (*Agent).uptimeCommand,
		},
		"help": {
			arities: []int{0, 1},
			usage:   "help [command]",
			help:    "Show help",
			run: func(_ *Agent, _ context.Context, args []string) (string, error) {
				return helpText(args), nil
			},
		},
	}
}

// Commands returns the sorted command names.
func Commands() []string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func helpText(args []string) string {
	if len(args) == 1 {
		cmd, ok := commandTable[args[0]]
		if !ok {
			return fmt.Sprintf("unknown command %q", args[0])
		}
		return fmt.Sprintf("%s\n  %s", cmd.usage, cmd.help)
	}

	var b strings.Builder
	for i, name := range Commands() {
		if i > 0 {
			b.WriteByte('\n')
		}
		cmd := commandTable[name]
		fmt.Fprintf(&b, "%-22s %s", cmd.usage, cmd.help)
	}
	return b.String()
}

func parseAddress(ip, port string) (string, int, error) {
	if ip == "" || strings.ContainsAny(ip, "/ ") {
		return "", 0, illegal("invalid server address %q", ip)
	}
	if strings.Contains(ip, ":") && net.ParseIP(ip) == nil {
		return "", 0, illegal("invalid server address %q", ip)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < constants.MinTCPPort || p > constants.MaxTCPPort {
		return "", 0, illegal("invalid server port %q", port)
	}
	return ip, p, nil
}

func (a *Agent) devicesCommand(ctx context.Context, _ []string) (string, error) {
	if a.layer == nil {
		return "", illegal("agent is not running")
	}

	ids := a.layer.registry.List()
	if len(ids) == 0 {
		return "no devices attached", nil
	}

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('\n')
		}
		w, ok := a.layer.registry.Lookup(id)
		if !ok {
			continue
		}
		info, err := w.Info(ctx)
		if err != nil || info == nil {
			fmt.Fprintf(&b, "%s", id)
			continue
		}
		fmt.Fprintf(&b, "%s\t%s %s (Android %s, API %d)", id, info.Manufacturer, info.Model, info.Release, info.APILevel)
	}
	return b.String(), nil
}

func (a *Agent) statusCommand(_ context.Context, _ []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s", a.State())
	if a.layer != nil {
		fmt.Fprintf(&b, "\ndevices: %d", a.layer.registry.Len())
		fmt.Fprintf(&b, "\nports in use: %d/%d", a.layer.pool.InUse(), a.layer.pool.Capacity())
	}
	if a.conn != nil {
		link := "up"
		if !a.conn.session.Alive() {
			link = "lost, disconnect and connect again"
		}
		fmt.Fprintf(&b, "\nsession: %s", link)
	}
	return b.String(), nil
}

func (a *Agent) uptimeCommand(ctx context.Context, _ []string) (string, error) {
	out := "agent: " + uptimeString(time.Since(a.startedAt))
	if a.deps.Metrics == nil {
		return out, nil
	}
	if c, ok := a.deps.Metrics.Get("uptime"); ok {
		if v, ok := c.Collect(ctx).(*float64); ok && v != nil {
			out += "\nhost: " + uptimeString(time.Duration(*v)*time.Second)
		}
	}
	return out, nil
}
