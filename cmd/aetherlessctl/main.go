// aetherlessctl is the remote CLI client for aetherlessd.
//
// It talks to the daemon's HTTP API and provides both an interactive
// shell and a one-shot command mode:
//
//	aetherlessctl show status
//	aetherlessctl register port 8080 pid 4242
//	aetherlessctl
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "aetherlessd API address")
	flag.Parse()

	c := &ctl{
		base: "http://" + *addr,
		http: &http.Client{Timeout: 5 * time.Second},
	}

	// Verify connectivity
	if err := c.get("/health", nil); err != nil {
		fmt.Fprintf(os.Stderr, "aetherlessctl: cannot reach aetherlessd at %s: %v\n", *addr, err)
		os.Exit(1)
	}

	// One-shot mode
	if flag.NArg() > 0 {
		if err := c.dispatch(strings.Join(flag.Args(), " ")); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "aetherless> ",
		HistoryFile:     "/tmp/aetherlessctl_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "aetherlessctl: readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("aetherlessctl - connected to aetherlessd")
	fmt.Println("Type 'help' for available commands")
	fmt.Println()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.dispatch(line); err != nil {
			if err == errExit {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("show",
			readline.PcItem("status"),
			readline.PcItem("statistics"),
			readline.PcItem("ports"),
		),
		readline.PcItem("register",
			readline.PcItem("port"),
		),
		readline.PcItem("unregister",
			readline.PcItem("port"),
		),
		readline.PcItem("clear",
			readline.PcItem("statistics"),
		),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

var errExit = fmt.Errorf("exit")

type ctl struct {
	base string
	http *http.Client
}

func (c *ctl) dispatch(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "show":
		if len(fields) != 2 {
			return fmt.Errorf("usage: show status|statistics|ports")
		}
		switch fields[1] {
		case "status":
			return c.showStatus()
		case "statistics":
			return c.showStatistics()
		case "ports":
			return c.showPorts()
		}
		return fmt.Errorf("unknown show target %q", fields[1])

	case "register":
		return c.register(fields[1:])

	case "unregister":
		if len(fields) != 3 || fields[1] != "port" {
			return fmt.Errorf("usage: unregister port <port>")
		}
		return c.unregister(fields[2])

	case "clear":
		if len(fields) != 2 || fields[1] != "statistics" {
			return fmt.Errorf("usage: clear statistics")
		}
		if err := c.post("/api/v1/statistics/clear", nil, nil); err != nil {
			return err
		}
		fmt.Println("statistics cleared")
		return nil

	case "help", "?":
		printHelp()
		return nil

	case "exit", "quit":
		return errExit
	}
	return fmt.Errorf("unknown command %q (try 'help')", fields[0])
}

func printHelp() {
	fmt.Print(`Available commands:
  show status                                    daemon status
  show statistics                                classification counters
  show ports                                     registered redirect entries
  register port <port> pid <pid> [addr <ip>]    add a redirect entry
  unregister port <port>                         remove a redirect entry
  clear statistics                               reset all counters
  exit                                           leave the shell
`)
}

func (c *ctl) showStatus() error {
	var status struct {
		Uptime    string `json:"uptime"`
		Interface string `json:"interface"`
		Backend   string `json:"backend"`
		Policy    string `json:"policy"`
		PortCount int    `json:"port_count"`
	}
	if err := c.get("/api/v1/status", &status); err != nil {
		return err
	}
	fmt.Printf("Uptime:     %s\n", status.Uptime)
	fmt.Printf("Interface:  %s\n", status.Interface)
	fmt.Printf("Backend:    %s\n", status.Backend)
	fmt.Printf("Policy:     %s\n", status.Policy)
	fmt.Printf("Ports:      %d\n", status.PortCount)
	return nil
}

func (c *ctl) showStatistics() error {
	var stats struct {
		Total   uint64 `json:"packets_total"`
		Matched uint64 `json:"packets_matched"`
		Passed  uint64 `json:"packets_passed"`
		Dropped uint64 `json:"packets_dropped"`
		Shards  []struct {
			Shard   int    `json:"shard"`
			Total   uint64 `json:"packets_total"`
			Matched uint64 `json:"packets_matched"`
			Passed  uint64 `json:"packets_passed"`
			Dropped uint64 `json:"packets_dropped"`
		} `json:"shards"`
	}
	if err := c.get("/api/v1/statistics", &stats); err != nil {
		return err
	}
	fmt.Printf("Packets total:    %d\n", stats.Total)
	fmt.Printf("Packets matched:  %d\n", stats.Matched)
	fmt.Printf("Packets passed:   %d\n", stats.Passed)
	fmt.Printf("Packets dropped:  %d\n", stats.Dropped)
	if len(stats.Shards) > 0 {
		fmt.Println()
		fmt.Printf("%-6s %12s %12s %12s %12s\n", "Shard", "Total", "Matched", "Passed", "Dropped")
		for _, s := range stats.Shards {
			fmt.Printf("%-6d %12d %12d %12d %12d\n", s.Shard, s.Total, s.Matched, s.Passed, s.Dropped)
		}
	}
	return nil
}

func (c *ctl) showPorts() error {
	var ports []struct {
		Port uint16 `json:"port"`
		PID  uint32 `json:"pid"`
		Addr string `json:"addr"`
	}
	if err := c.get("/api/v1/ports", &ports); err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no ports registered")
		return nil
	}
	fmt.Printf("%-8s %-10s %s\n", "Port", "PID", "Addr")
	for _, p := range ports {
		fmt.Printf("%-8d %-10d %s\n", p.Port, p.PID, p.Addr)
	}
	return nil
}

// register parses "port <port> pid <pid> [addr <ip>]".
func (c *ctl) register(args []string) error {
	usage := fmt.Errorf("usage: register port <port> pid <pid> [addr <ip>]")
	if len(args) < 4 || args[0] != "port" || args[2] != "pid" {
		return usage
	}
	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q", args[1])
	}
	pid, err := strconv.ParseUint(args[3], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid pid %q", args[3])
	}

	req := map[string]any{"port": port, "pid": pid}
	switch {
	case len(args) == 4:
	case len(args) == 6 && args[4] == "addr":
		req["addr"] = args[5]
	default:
		return usage
	}

	var entry struct {
		Port uint16 `json:"port"`
		PID  uint32 `json:"pid"`
		Addr string `json:"addr"`
	}
	if err := c.post("/api/v1/ports", req, &entry); err != nil {
		return err
	}
	fmt.Printf("registered port %d -> pid %d (%s)\n", entry.Port, entry.PID, entry.Addr)
	return nil
}

func (c *ctl) unregister(portArg string) error {
	port, err := strconv.ParseUint(portArg, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q", portArg)
	}
	if err := c.delete(fmt.Sprintf("/api/v1/ports/%d", port)); err != nil {
		return err
	}
	fmt.Printf("unregistered port %d\n", port)
	return nil
}

// envelope matches the API's standard JSON response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *ctl) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("%s", env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func (c *ctl) get(path string, out any) error {
	req, err := http.NewRequest("GET", c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *ctl) post(path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest("POST", c.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *ctl) delete(path string) error {
	req, err := http.NewRequest("DELETE", c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
