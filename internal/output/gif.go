package output

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"
	"sort"

	"github.com/nfnt/resize"
)

// StripOptions configures the GIF strip
type StripOptions struct {
	FPS   int
	Width uint
}

// Strip writes all images as one looping GIF and returns its size
func Strip(frames []image.Image, outputPath string, opts StripOptions) (int64, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	if opts.FPS <= 0 {
		opts.FPS = 1
	}
	if opts.Width == 0 {
		opts.Width = 800
	}

	// Delay is in 100ths of a second
	delay := 100 / opts.FPS

	scaled := make([]image.Image, len(frames))
	var height int
	for i, frame := range frames {
		b := frame.Bounds()
		h := uint(float64(opts.Width) * float64(b.Dy()) / float64(b.Dx()))
		scaled[i] = resize.Resize(opts.Width, h, frame, resize.Lanczos3)
		if dy := scaled[i].Bounds().Dy(); dy > height {
			height = dy
		}
	}

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(scaled)),
		Delay:     make([]int, len(scaled)),
		LoopCount: 0,
		Config: image.Config{
			Width:  int(opts.Width),
			Height: height,
		},
	}

	palette := generatePalette(scaled)
	canvas := image.Rect(0, 0, int(opts.Width), height)
	for i, frame := range scaled {
		p := image.NewPaletted(canvas, palette)
		draw.Draw(p, canvas, image.White, image.Point{}, draw.Src)
		draw.FloydSteinberg.Draw(p, frame.Bounds().Sub(frame.Bounds().Min), frame, frame.Bounds().Min)
		g.Image[i] = p
		g.Delay[i] = delay
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// generatePalette picks the 255 most frequent colors across frames plus white
func generatePalette(frames []image.Image) color.Palette {
	counts := make(map[color.RGBA]int)
	const step = 4
	for _, img := range frames {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y += step {
			for x := b.Min.X; x < b.Max.X; x += step {
				r, g, bl, a := img.At(x, y).RGBA()
				counts[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)}]++
			}
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	colors := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		colors = append(colors, colorCount{c, n})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].count != colors[j].count {
			return colors[i].count > colors[j].count
		}
		a, b := colors[i].c, colors[j].c
		return uint32(a.R)<<24|uint32(a.G)<<16|uint32(a.B)<<8|uint32(a.A) <
			uint32(b.R)<<24|uint32(b.G)<<16|uint32(b.B)<<8|uint32(b.A)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{255, 255, 255, 255})
	for i := 0; i < len(colors) && len(palette) < 256; i++ {
		if colors[i].c == (color.RGBA{255, 255, 255, 255}) {
			continue
		}
		palette = append(palette, colors[i].c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
