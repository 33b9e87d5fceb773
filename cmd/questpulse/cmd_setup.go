package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"questpulse/internal/config"
)

// cmdInit initializes QuestPulse for first-time use
func cmdInit() error {
	fmt.Println("QuestPulse - First-Time Setup")
	fmt.Println("=============================")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Creating ~/.questpulse directory structure... ")
	baseDir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(baseDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	// AI provider setup
	fmt.Println()
	fmt.Println("AI Provider Setup")
	fmt.Println("-----------------")
	fmt.Println("QuestPulse works offline with the scripted companion.")
	fmt.Println("Add a Claude API key for conversational interventions.")
	fmt.Println()

	cfg, _ := config.LoadLocalConfig()
	if cfg != nil && cfg.Assistant.Providers["claude"] != nil && cfg.Assistant.Providers["claude"].APIKey != "" {
		fmt.Println("Claude API key: already configured ✓")
	} else {
		fmt.Print("Enter Claude API key (or press Enter to skip): ")
		key, _ := reader.ReadString('\n')
		key = strings.TrimSpace(key)
		if key != "" {
			if err := config.SaveSecrets(map[string]string{"claude": key}); err != nil {
				fmt.Printf("  ⚠ Failed to save: %v\n", err)
			} else {
				fmt.Println("  ✓ Saved")
			}
		}
	}

	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. questpulse start    # Start the daemon")
	fmt.Println("  2. questpulse doctor   # Verify configuration")
	fmt.Println("  3. questpulse status   # See your health snapshot")
	fmt.Println()
	fmt.Println("For editor integration:")
	fmt.Println("  - Configure MCP with the 'questpulse mcp' command")

	return nil
}

// cmdDoctor checks configuration and daemon health
func cmdDoctor() error {
	fmt.Println("Checking QuestPulse health...")

	allGood := true

	fmt.Print("Directory: ")
	baseDir, err := config.Dir()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		fmt.Println("✗ not created (run 'questpulse init')")
		allGood = false
	} else {
		fmt.Printf("✓ %s\n", baseDir)
	}

	fmt.Print("Config:    ")
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Println("✓ loaded")

		fmt.Println("\nAI Providers:")
		for name, provider := range cfg.Assistant.Providers {
			if !provider.Enabled {
				continue
			}

			fmt.Printf("  %s: ", name)
			if name == "scripted" {
				fmt.Println("✓ always available")
			} else if provider.APIKey != "" {
				fmt.Printf("✓ configured (model: %s)\n", provider.Model)
			} else {
				fmt.Printf("✗ no API key (run 'questpulse provider set-key %s')\n", name)
			}
		}

		fmt.Println("\nTriggers:")
		for _, t := range cfg.EffectiveTriggers() {
			state := "enabled"
			if !t.Enabled {
				state = "disabled"
			}
			fmt.Printf("  %s: %s (%s level, cooldown %s)\n", t.ID, state, t.ResponseLevel, t.Cooldown)
		}
	}

	fmt.Print("\nDaemon:    ")
	if isRunning() {
		fmt.Println("✓ running")
	} else {
		fmt.Println("✗ not running (run 'questpulse start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("All checks passed! ✓")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}

	return nil
}

// cmdConfig shows current configuration
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("QuestPulse Configuration")

	fmt.Println("Daemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	fmt.Println("\nAssistant:")
	fmt.Printf("  default_provider: %s\n", cfg.Assistant.DefaultProvider)
	for name, provider := range cfg.Assistant.Providers {
		if provider.Enabled {
			hasKey := provider.APIKey != "" || name == "scripted"
			keyStatus := "✗"
			if hasKey {
				keyStatus = "✓"
			}
			fmt.Printf("  %s: enabled=%t model=%s key=%s\n", name, provider.Enabled, provider.Model, keyStatus)
		}
	}

	fmt.Println("\nMonitor:")
	fmt.Printf("  check_interval: %ds\n", cfg.Monitor.CheckIntervalSeconds)

	fmt.Println("\nTriggers:")
	for _, t := range cfg.EffectiveTriggers() {
		fmt.Printf("  %s: enabled=%t level=%s cooldown=%s\n", t.ID, t.Enabled, t.ResponseLevel, t.Cooldown)
	}

	baseDir, _ := config.Dir()
	fmt.Printf("\nConfig path: %s/config.yaml\n", baseDir)

	return nil
}

// cmdProvider manages AI provider API keys
func cmdProvider(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Provider management commands:

  questpulse provider list              List configured providers
  questpulse provider set-key <name>    Set API key for a provider`)
		return nil
	}

	switch args[0] {
	case "list":
		return cmdProviderList()
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("provider name required")
		}
		return cmdProviderSetKey(args[1])
	default:
		return fmt.Errorf("unknown provider command: %s", args[0])
	}
}

func cmdProviderList() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Configured AI Providers:")
	for name, provider := range cfg.Assistant.Providers {
		status := "disabled"
		if provider.Enabled {
			if provider.APIKey != "" || name == "scripted" {
				status = "ready"
			} else {
				status = "needs API key"
			}
		}

		isDefault := ""
		if name == cfg.Assistant.DefaultProvider {
			isDefault = " (default)"
		}

		fmt.Printf("  %s%s\n", name, isDefault)
		fmt.Printf("    status: %s\n", status)
		if provider.Model != "" {
			fmt.Printf("    model:  %s\n", provider.Model)
		}
		fmt.Println()
	}

	return nil
}

func cmdProviderSetKey(provider string) error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, ok := cfg.Assistant.Providers[provider]; !ok {
		return fmt.Errorf("unknown provider: %s (valid: claude, scripted)", provider)
	}

	if provider == "scripted" {
		fmt.Println("The scripted provider doesn't require an API key.")
		return nil
	}

	fmt.Printf("Enter %s API key: ", provider)
	reader := bufio.NewReader(os.Stdin)
	key, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	key = strings.TrimSpace(key)

	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := config.SaveSecrets(map[string]string{provider: key}); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}

	fmt.Printf("✓ API key saved for %s\n", provider)
	fmt.Println("Restart the daemon for changes to take effect.")
	return nil
}
