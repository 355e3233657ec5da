package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/preserve/pkg/preserve/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage preserve configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/preserve/config.yaml (if set)
  2. ~/.config/preserve/config.yaml

Environment variables can override config file settings using the PRESERVE_ prefix:
  PRESERVE_PATHS_DEFAULT_STYLE=flat
  PRESERVE_VERIFICATION_VERIFY_AFTER_COPY=false
  PRESERVE_WORKERS=8`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration merged from defaults, the config file and the environment.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

// cliOnlyKeys are bound flags that are not configuration.
var cliOnlyKeys = []string{"verbose", "quiet", "no_cache", "no_progress", "template"}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configTarget is the file the config subcommands act on.
func configTarget() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigPath()
}

// runConfigShow displays the effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	if configFile := viper.ConfigFileUsed(); configFile != "" && configErr == nil {
		fmt.Printf("# Config file: %s\n", configFile)
	} else {
		fmt.Println("# Config file: (using defaults, no file found)")
	}
	if _, err := loadConfig(); err != nil {
		printError("Configuration is invalid: %v", err)
	}

	settings := viper.AllSettings()
	for _, key := range cliOnlyKeys {
		delete(settings, key)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	fmt.Print(string(data))

	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "PRESERVE_") {
			overrides = append(overrides, kv)
		}
	}
	sort.Strings(overrides)

	fmt.Println("\n# Environment overrides:")
	if len(overrides) == 0 {
		fmt.Println("#   (none)")
	}
	for _, kv := range overrides {
		fmt.Printf("#   %s\n", kv)
	}
	return nil
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, err := configTarget()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, err := configTarget()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	created, err := config.WriteDefault(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !created {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'preserve config edit' to modify it.")
		return nil
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := configTarget()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
