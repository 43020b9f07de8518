// modeswitchctl is the control CLI for modeswitchd.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"modeswitchd/internal/config"
	"modeswitchd/internal/ipc"
)

const version = "1.0.0"

var (
	configPath = flag.String("config", "", "path to config file")
	asJSON     = flag.Bool("json", false, "print raw JSON where applicable")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "status":
		cmdStatus()
	case "health":
		component := ""
		if flag.NArg() >= 2 {
			component = flag.Arg(1)
		}
		cmdHealth(component)
	case "ping":
		cmdPing()
	case "reload":
		cmdReload()
	case "resetup":
		cmdResetup()
	case "watch":
		cmdWatch()
	case "stop":
		cmdStop()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `modeswitchctl - Control utility for modeswitchd

Usage: modeswitchctl [options] <command> [args]

Commands:
  status          Show daemon status, observers, and counters
  health [name]   Run health checks (optionally a single component)
  ping            Check whether the daemon is responsive
  reload          Re-read the configuration file
  resetup         Force a fresh observer setup pass
  watch           Stream daemon events until interrupted
  stop            Ask the daemon to exit
  help            Show this help message

Options:
  -config <path>  Path to config file (default: ~/.config/modeswitchd/config.toml)
  -json           Print raw JSON where applicable`)
}

func connect() *ipc.IPCClient {
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	clientCfg := ipc.ClientConfig{
		SocketPath:     cfg.IPC.SocketPath,
		ClientName:     "modeswitchctl",
		ClientVersion:  version,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}

	client := ipc.NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot connect to daemon: %v\n", err)
		fmt.Fprintln(os.Stderr, "  Tip: start it with: modeswitchd run")
		os.Exit(1)
	}
	return client
}

func cmdStatus() {
	client := connect()
	defer client.Close()

	status, err := client.Status(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get status: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		data, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Println("=== modeswitchd Status ===")
	fmt.Println()
	fmt.Printf("Version:    %s\n", status.Version)
	fmt.Printf("Uptime:     %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("Started:    %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Printf("Selection:  %s\n", status.Selection)
	fmt.Println()

	fmt.Println("Observers:")
	if len(status.Observers) == 0 {
		fmt.Println("  (none registered)")
	}
	for _, o := range status.Observers {
		fmt.Printf("  %-20s %-12s %s\n", o.Identity, o.Outcome, strings.Join(o.Identifiers, ", "))
	}
	if status.HeuristicActive {
		fmt.Println("  cursor heuristic: ACTIVE (fallback)")
	}
	fmt.Println()

	fmt.Println("Extensions:")
	if len(status.Extensions) == 0 {
		fmt.Println("  (no editor plugin connected)")
	}
	for _, e := range status.Extensions {
		fmt.Printf("  %-30s %s\n", e.ID, strings.Join(e.Surfaces, ", "))
	}
	fmt.Println()

	fmt.Println("Input Method:")
	fmt.Printf("  Framework:  %s\n", status.IMEFramework)
	if status.IMEDegraded {
		fmt.Println("  Status:     DEGRADED (switches skipped)")
	} else if status.CurrentEngine != "" {
		fmt.Printf("  Engine:     %s\n", status.CurrentEngine)
	}
	fmt.Println()

	fmt.Println("Counters:")
	fmt.Printf("  Mode events:        %d\n", status.ModeEvents)
	fmt.Printf("  Normal transitions: %d\n", status.NormalTransitions)
	fmt.Printf("  Switches issued:    %d\n", status.SwitchesIssued)
	fmt.Printf("  Switch failures:    %d\n", status.SwitchFailures)

	if len(status.Config) > 0 {
		fmt.Println()
		fmt.Println("Config:")
		for k, v := range status.Config {
			fmt.Printf("  %-22s %v\n", k, v)
		}
	}
}

func cmdHealth(component string) {
	client := connect()
	defer client.Close()

	report, err := client.Health(component)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Overall: %s\n", strings.ToUpper(report.Status))
		for _, comp := range report.Components {
			fmt.Printf("  %-12s %-10s %s\n", comp.Name, comp.Status, comp.Message)
		}
	}

	if report.Status == "unhealthy" {
		os.Exit(1)
	}
}

func cmdPing() {
	client := connect()
	defer client.Close()

	start := time.Now()
	if err := client.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Ping failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Microsecond))
}

func cmdReload() {
	client := connect()
	defer client.Close()

	if err := client.ReloadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Reload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Configuration reloaded.")
}

func cmdResetup() {
	client := connect()
	defer client.Close()

	resp, err := client.Resetup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Resetup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Setup pass complete: %d observer(s) attached", resp.Attached)
	if resp.HeuristicActive {
		fmt.Print(", cursor heuristic active")
	}
	fmt.Println()
}

func cmdWatch() {
	client := connect()
	defer client.Close()

	if err := client.Subscribe(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Subscribe failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Watching daemon events (Ctrl-C to stop)...")
	for event := range client.Events() {
		ts := event.Timestamp.Format("15:04:05.000")
		switch event.Type {
		case ipc.EventNormalMode:
			fmt.Printf("%s  normal-mode   %s\n", ts, describeData(event.Data))
		case ipc.EventSwitchIssued:
			fmt.Printf("%s  switch        %s\n", ts, describeData(event.Data))
		case ipc.EventSetupPass:
			fmt.Printf("%s  setup-pass    %s\n", ts, describeData(event.Data))
		case ipc.EventConfigChanged:
			fmt.Printf("%s  config-changed\n", ts)
		case ipc.EventDaemonShutdown:
			fmt.Printf("%s  daemon shutting down\n", ts)
			return
		default:
			fmt.Printf("%s  event %d      %s\n", ts, event.Type, describeData(event.Data))
		}
	}
}

func cmdStop() {
	client := connect()
	defer client.Close()

	if err := client.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Stop failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Shutdown requested.")
}

func describeData(data any) string {
	if data == nil {
		return ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}
