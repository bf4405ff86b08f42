package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit configuration",
	Long: `Config commands read and edit the folio config file.

Keys are dotted paths such as viewer.failure_threshold or
translators.openai.enabled. Values are parsed as YAML, so numbers,
booleans and lists keep their type.

Examples:
  folio config init
  folio config get extraction.scanned_threshold
  folio config set translation.default_language de
  folio config list translators
  folio config reset viewer.desktop_timeout`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := configStore()
		if err != nil {
			return err
		}
		entry, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if entry == nil {
			// Unset keys report their default.
			entry = config.GetDefault(args[0])
		}
		if entry == nil {
			return fmt.Errorf("%s is not set", args[0])
		}
		return api.Output(entry)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := configStore()
		if err != nil {
			return err
		}
		return store.Set(args[0], parseValue(args[1]))
	},
}

var configListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := configStore()
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		entries, err := store.GetByPrefix(prefix)
		if err != nil {
			return err
		}
		// Defaults fill in keys the file leaves out.
		for _, def := range config.DefaultEntries() {
			if _, ok := entries[def.Key]; !ok && strings.HasPrefix(def.Key, prefix) {
				entries[def.Key] = def
			}
		}
		list := make([]config.Entry, 0, len(entries))
		for _, key := range config.SortedKeys(entries) {
			list = append(list, entries[key])
		}
		return api.Output(list)
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Restore a setting to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := configStore()
		if err != nil {
			return err
		}
		return config.ResetToDefault(store, args[0])
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configResetCmd)
}

// configPath is --config, or config.yaml in the home directory.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	h, err := home.New(homeDir)
	if err != nil {
		return "", err
	}
	if err := h.EnsureExists(); err != nil {
		return "", err
	}
	return h.ConfigPath(), nil
}

func configStore() (*config.FileStore, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return config.NewFileStore(path), nil
}

// parseValue reads a command-line value as YAML, keeping it a string when
// it does not parse.
func parseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}
