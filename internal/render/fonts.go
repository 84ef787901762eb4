package render

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// fontSet holds the parsed fonts reused across all slides of a render.
// Faces are cut from these per size because a truetype face carries its
// point size.
type fontSet struct {
	regular *truetype.Font
	bold    *truetype.Font
}

// loadFonts parses the configured TTF, or the bundled Go fonts when no
// font_path is set. A configured font serves both weights.
func (r *Renderer) loadFonts() (*fontSet, error) {
	if path := r.cfg.Render.FontPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", path, err)
		}
		f, err := truetype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse font %s: %w", path, err)
		}
		return &fontSet{regular: f, bold: f}, nil
	}

	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bundled regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bundled bold font: %w", err)
	}
	return &fontSet{regular: regular, bold: bold}, nil
}

func (s *fontSet) regularFace(points float64) font.Face {
	return truetype.NewFace(s.regular, &truetype.Options{Size: points})
}

func (s *fontSet) boldFace(points float64) font.Face {
	return truetype.NewFace(s.bold, &truetype.Options{Size: points})
}
