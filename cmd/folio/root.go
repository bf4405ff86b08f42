package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/viewer"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool
	device       string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Document viewer with text extraction, OCR and page translation",
	Long: `Folio opens PDFs, images, office files and plain text, renders pages,
extracts their text and translates them page by page.

It includes:
  - A page renderer that falls back to a compatibility viewer
  - Text-layer extraction with scanned-document detection
  - Remote and local OCR engines
  - Streaming page translation with per-session caching and export`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or text",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "log debug output to stderr",
	)
	rootCmd.PersistentFlags().StringVar(
		&device, "device", "desktop", "viewer profile: desktop or mobile",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(translateCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadServices builds the services for a command and attaches them to its
// context. The caller closes them.
func loadServices(cmd *cobra.Command) (*svcctx.Services, error) {
	if s := svcctx.ServicesFrom(cmd.Context()); s != nil {
		return s, nil
	}
	s, err := svcctx.New(cmd.Context(), svcctx.Options{
		ConfigFile: cfgFile,
		HomeDir:    homeDir,
		Logger:     newLogger(),
	})
	if err != nil {
		return nil, err
	}
	cmd.SetContext(svcctx.WithServices(cmd.Context(), s))
	return s, nil
}

// openWorkspace loads services and opens src. Fallback notices are printed
// to stderr once.
func openWorkspace(cmd *cobra.Command, src string, opts svcctx.OpenOptions) (*svcctx.Services, *svcctx.Workspace, error) {
	s, err := loadServices(cmd)
	if err != nil {
		return nil, nil, err
	}
	opts.Source = src
	opts.Device = viewer.ParseDevice(device)
	opts.OnNotice = func(n viewer.Notice) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", n.Message)
	}
	w, err := s.Open(cmd.Context(), opts)
	if err != nil {
		if w != nil {
			w.Close()
		}
		s.Close()
		return nil, nil, err
	}
	return s, w, nil
}
