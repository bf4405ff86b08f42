package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/viewer"
)

var (
	renderPage     int
	renderZoom     float64
	renderRotation int
	renderOut      string
)

var renderCmd = &cobra.Command{
	Use:   "render <source>",
	Short: "Render a PDF page to PNG",
	Long: `Render rasterises one page at the given zoom and rotation. Renders
are cached under the home directory; --out also writes the PNG to a file.

When rendering keeps failing the viewer switches to its compatibility
path and rendering stops for the rest of the session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, w, err := openWorkspace(cmd, args[0], svcctx.OpenOptions{})
		if err != nil {
			return err
		}
		defer s.Close()
		defer w.Close()

		if _, err := w.Controller.GoTo(renderPage); err != nil {
			return err
		}
		if cmd.Flags().Changed("zoom") {
			if _, err := w.Controller.SetZoom(renderZoom); err != nil {
				return err
			}
		}
		if renderRotation != 0 {
			if _, err := w.Controller.Rotate(renderRotation); err != nil {
				return err
			}
		}

		page, err := w.Render(cmd.Context())
		if err != nil {
			return err
		}
		out := rendered{RenderedPage: *page, State: w.Controller.State(), Path: w.Controller.Path()}
		if s.Home != nil {
			out.CachePath = s.Home.RenderPath(w.Ref.ID, page.Page, page.Zoom, page.Rotation)
		}
		if renderOut != "" {
			if err := os.WriteFile(renderOut, page.PNG, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", renderOut, err)
			}
			out.File = renderOut
		}
		return api.Output(out)
	},
}

type rendered struct {
	viewer.RenderedPage `yaml:",inline"`
	State               viewer.State `json:"state" yaml:"state"`
	Path                viewer.Path  `json:"path" yaml:"path"`
	CachePath           string       `json:"cache_path,omitempty" yaml:"cache_path,omitempty"`
	File                string       `json:"file,omitempty" yaml:"file,omitempty"`
}

func init() {
	renderCmd.Flags().IntVarP(&renderPage, "page", "p", 1, "page number")
	renderCmd.Flags().Float64VarP(&renderZoom, "zoom", "z", viewer.DefaultZoom, "zoom factor")
	renderCmd.Flags().IntVarP(&renderRotation, "rotation", "r", 0, "clockwise rotation in degrees")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "write the PNG to this file")
}
