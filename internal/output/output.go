package output

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/nfnt/resize"

	"github.com/v0xg/shortweb/internal/engine"
)

// ManifestFile is the name of the manifest written into every run directory
const ManifestFile = "results.json"

// Options configures how results are written
type Options struct {
	Dir      string
	MaxWidth uint // images wider than this are scaled down, 0 keeps them as is
	GIF      bool // also write a strip of all images
	FPS      int
}

// Entry is one result in the manifest
type Entry struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Text   string `json:"text,omitempty"`
	Image  string `json:"image,omitempty"`
	Source string `json:"source,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Manifest describes everything a run produced
type Manifest struct {
	Document string    `json:"document"`
	Stopped  bool      `json:"stopped"`
	Written  time.Time `json:"written"`
	Results  []Entry   `json:"results"`
	GIF      string    `json:"gif,omitempty"`
}

// Write stores results under Dir/<document> and returns the manifest and that directory
func Write(document string, results engine.Results, stopped bool, opts Options) (*Manifest, string, error) {
	dir := filepath.Join(opts.Dir, Slug(document))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create output dir: %w", err)
	}

	m := &Manifest{
		Document: document,
		Stopped:  stopped,
		Written:  time.Now().UTC(),
		Results:  make([]Entry, 0, len(results)),
	}
	var images []image.Image
	for i, r := range results {
		e := Entry{Index: i, Kind: r.Kind().String(), Text: r.Text, Source: r.Source}
		if r.Kind() == engine.KindImage {
			img := Scale(r.Image, opts.MaxWidth)
			name := fmt.Sprintf("%03d.png", i)
			if err := writePNG(filepath.Join(dir, name), img); err != nil {
				return nil, "", err
			}
			e.Image = name
			e.Width = img.Bounds().Dx()
			e.Height = img.Bounds().Dy()
			images = append(images, img)
		}
		m.Results = append(m.Results, e)
	}

	if opts.GIF && len(images) > 0 {
		if _, err := Strip(images, filepath.Join(dir, "results.gif"), StripOptions{FPS: opts.FPS, Width: opts.MaxWidth}); err != nil {
			return nil, "", err
		}
		m.GIF = "results.gif"
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, "", err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), raw, 0o644); err != nil {
		return nil, "", fmt.Errorf("write manifest: %w", err)
	}
	return m, dir, nil
}

// Scale shrinks img to maxWidth keeping its aspect ratio
func Scale(img image.Image, maxWidth uint) image.Image {
	if maxWidth == 0 || uint(img.Bounds().Dx()) <= maxWidth {
		return img
	}
	return resize.Resize(maxWidth, 0, img, resize.Lanczos3)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Slug turns a document name into a directory name
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "run"
	}
	return s
}
