package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7433"
	pidFile    = "questpulsed.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "provider":
		err = cmdProvider(os.Args[2:])
	case "events":
		err = cmdEvents(os.Args[2:])
	case "triggers":
		err = cmdTriggers()
	case "intervention":
		err = cmdIntervention(os.Args[2:])
	case "chat":
		err = cmdChat(os.Args[2:])
	case "postpone":
		err = cmdPostpone(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("questpulse %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`QuestPulse - Proactive Planning Companion

Usage:
  questpulse <command> [arguments]

Setup Commands:
  init            Initialize QuestPulse (first-time setup)
  doctor          Check configuration and daemon health
  config          Show current configuration
  provider        Manage AI providers

Daemon Commands:
  start           Start the QuestPulse daemon
  stop            Stop the QuestPulse daemon
  status          Show health snapshot and active intervention
  logs            View daemon logs

Activity Commands:
  events          List recent activity events
  triggers        List intervention triggers and cooldowns
  postpone <id>   Record a deadline postponement for a task

Intervention Commands:
  intervention acknowledge   Acknowledge the active intervention
  intervention escalate      Escalate to coach mode
  intervention resolve       Resolve with an optional note
  intervention dismiss       Dismiss without resolution
  chat <message>             Talk to the companion

Integration Commands:
  mcp             Start MCP server (for editor agents)

Other:
  help            Show this help message
  version         Show version information

Examples:
  questpulse start                       # Start daemon
  questpulse status                      # Health snapshot
  questpulse events --type task.completed
  questpulse chat "deadlines got away from me"
  questpulse intervention resolve "caught up"`)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
