package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"questpulse/internal/config"
)

// cmdStart starts the daemon in the background
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	baseDir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("setup questpulse directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(daemonPath)
	cmd.Dir = baseDir
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Detach from parent process (platform-specific)
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning() {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", daemonAddr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'questpulse logs')")
}

// cmdStop stops the daemon
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	baseDir, err := config.Dir()
	if err != nil {
		return err
	}

	pidPath := filepath.Join(baseDir, pidFile)
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning() {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus shows the health snapshot and any active intervention
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	resp, err := http.Get(daemonAddr + "/v1/status")
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status struct {
		Mode     string `json:"mode"`
		Snapshot struct {
			OverallStatus          string   `json:"overall_status"`
			WeightedCompletionRate float64  `json:"weighted_completion_rate"`
			OverdueTasksCount      int      `json:"overdue_tasks_count"`
			OverdueQuestsCount     int      `json:"overdue_quests_count"`
			OverdueChaptersCount   int      `json:"overdue_chapters_count"`
			AtRiskQuests           []string `json:"at_risk_quests"`
			StatusReasons          []string `json:"status_reasons"`
		} `json:"snapshot"`
		ActiveIntervention *struct {
			TriggerID    string `json:"trigger_id"`
			Status       string `json:"status"`
			CurrentLevel string `json:"current_level"`
		} `json:"active_intervention"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	fmt.Printf("Mode:       %s\n", status.Mode)
	fmt.Printf("Health:     %s\n", status.Snapshot.OverallStatus)
	fmt.Printf("Completion: %s %.0f%%\n",
		renderProgressBar(status.Snapshot.WeightedCompletionRate, 20),
		status.Snapshot.WeightedCompletionRate*100)
	fmt.Printf("Overdue:    %d tasks, %d quests, %d chapters\n",
		status.Snapshot.OverdueTasksCount,
		status.Snapshot.OverdueQuestsCount,
		status.Snapshot.OverdueChaptersCount)
	if len(status.Snapshot.AtRiskQuests) > 0 {
		fmt.Printf("At risk:    %s\n", strings.Join(status.Snapshot.AtRiskQuests, ", "))
	}
	for _, reason := range status.Snapshot.StatusReasons {
		fmt.Printf("  - %s\n", reason)
	}

	if status.ActiveIntervention != nil {
		fmt.Printf("\nActive intervention: %s (%s, %s level)\n",
			status.ActiveIntervention.TriggerID,
			status.ActiveIntervention.Status,
			status.ActiveIntervention.CurrentLevel)
	}

	return nil
}

// cmdLogs shows recent daemon logs
func cmdLogs() error {
	baseDir, err := config.Dir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(baseDir, "logs", "questpulsed.log")

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Seek to end and go back ~4KB for recent logs
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	// Skip partial first line if we seeked
	if offset > 0 {
		reader := bufio.NewReader(file)
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}

	return nil
}

// isRunning checks if the daemon is running by calling the health endpoint
func isRunning() bool {
	resp, err := http.Get(daemonAddr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the questpulsed binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("questpulsed"); err == nil {
		return path, nil
	}

	// Check relative to this binary
	self, err := os.Executable()
	if err == nil {
		dir := filepath.Dir(self)
		path := filepath.Join(dir, "questpulsed")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	locations := []string{
		"/usr/local/bin/questpulsed",
		"./questpulsed",
		"./cmd/questpulsed/questpulsed",
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("questpulsed binary not found (build with 'go build ./cmd/questpulsed')")
}
