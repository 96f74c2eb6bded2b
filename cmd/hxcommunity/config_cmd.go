package main

import (
	"fmt"
	"os"

	"github.com/havenova-x/hxcommunity"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to ~/.hxcommunity/config.toml",
	Long:  "Create the configuration file with the built-in endpoints. Existing values are kept.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		def := hxcommunity.DefaultConfig()
		fill(&cfg.Default.SheetID, def.SheetID)
		fill(&cfg.Default.ScriptURL, def.ScriptURL)
		fill(&cfg.Default.UploadURL, def.UploadURL)
		fill(&cfg.Default.AppOrigin, def.AppOrigin)
		fill(&cfg.Default.CacheVersion, def.CacheVersion)
		fill(&cfg.AI.URL, def.AIURL)
		fill(&cfg.AI.Model, def.AIModel)
		fill(&cfg.Push.Listen, ":8787")

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		path, _ := configPath()
		fmt.Printf("Configuration saved to %s\n", path)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  "View or modify the configuration stored in ~/.hxcommunity/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No configuration file found. Run 'hxcommunity init' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: hxcommunity config set ai.api_key sk-...",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
