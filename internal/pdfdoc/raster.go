package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// BaseDPI is the resolution of a page rendered at zoom 1.0.
const BaseDPI = 72

// RenderOptions control rasterisation of a single page.
type RenderOptions struct {
	Zoom     float64 // 1.0 renders at BaseDPI
	Rotation int     // Degrees clockwise, multiple of 90
}

// DPI returns the pdftoppm resolution for the options.
func (o RenderOptions) DPI() int {
	zoom := o.Zoom
	if zoom <= 0 {
		zoom = 1.0
	}
	dpi := int(float64(BaseDPI)*zoom + 0.5)
	if dpi < 1 {
		dpi = 1
	}
	return dpi
}

// Rasterizer renders PDF pages to PNG using pdftoppm (poppler-utils).
type Rasterizer struct {
	// Binary defaults to "pdftoppm" on PATH.
	Binary string
}

// Available reports whether the renderer binary can be found.
func (r Rasterizer) Available() bool {
	_, err := exec.LookPath(r.binary())
	return err == nil
}

func (r Rasterizer) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "pdftoppm"
}

// Render rasterises one page and returns PNG bytes.
func (r Rasterizer) Render(ctx context.Context, h *Handle, page int, opts RenderOptions) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if page < 1 || page > h.PageCount() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, h.PageCount())
	}

	pdfPath, err := h.path()
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "folio-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)

	// -singlefile writes <prefix>.png without a page suffix
	cmd := exec.CommandContext(ctx, r.binary(),
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(opts.DPI()),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	if opts.Rotation%360 == 0 {
		return data, nil
	}
	return RotatePNG(data, opts.Rotation)
}

// RotatePNG rotates a PNG clockwise by a multiple of 90 degrees.
func RotatePNG(data []byte, degrees int) ([]byte, error) {
	deg := ((degrees % 360) + 360) % 360
	if deg%90 != 0 {
		return nil, fmt.Errorf("rotation must be a multiple of 90, got %d", degrees)
	}
	if deg == 0 {
		return data, nil
	}
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	dst := rotate(src, deg)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// rotate turns src clockwise by 90, 180 or 270 degrees with an affine
// transform. Quarter turns map pixel centres onto pixel centres, so
// nearest-neighbour sampling is exact.
func rotate(src image.Image, deg int) *image.RGBA {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	x0, y0 := float64(b.Min.X), float64(b.Min.Y)

	var m f64.Aff3
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	switch deg {
	case 90:
		// (x, y) -> (h - y, x)
		m = f64.Aff3{0, -1, h + y0, 1, 0, -x0}
	case 180:
		// (x, y) -> (w - x, h - y)
		m = f64.Aff3{-1, 0, w + x0, 0, -1, h + y0}
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	case 270:
		// (x, y) -> (y, w - x)
		m = f64.Aff3{0, 1, -y0, -1, 0, w + x0}
	}
	draw.NearestNeighbor.Transform(dst, m, src, b, draw.Src, nil)
	return dst
}
