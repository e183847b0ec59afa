package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crucible-ai/crucible/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the daemon configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the built-in default configuration to <data-dir>/config.yaml
so it can be edited. Refuses to overwrite an existing file unless --force
is given.`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := config.NewValidator().Validate(cfg); err != nil {
			return err
		}
		cmd.Println(okStyle.Render("configuration is valid"))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	dir := resolveDataDir()
	path := configFile
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}

	cfg := config.DefaultConfig()
	cfg.Core.DataDir = dir
	if err := config.Save(cfg, path, configForce); err != nil {
		return err
	}
	cmd.Printf("Wrote default config to %s\n", path)
	return nil
}
