// Package render turns chart specs, carousel drafts and flow diagrams into
// publishable assets. Every render lands under its own slug directory inside
// the workspace assets directory and is recorded as an asset row in the
// library so publishers and the preview server can find it later.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
)

// Output describes one finished render.
type Output struct {
	AssetID string
	Kind    string
	Dir     string
	Paths   []string
}

// Renderer writes assets to disk and records them in the library.
type Renderer struct {
	lib  *library.Library
	cfg  *config.Config
	root string
}

// NewRenderer builds a renderer rooted at the workspace assets directory.
func NewRenderer(lib *library.Library, cfg *config.Config, workspace string) *Renderer {
	return &Renderer{
		lib:  lib,
		cfg:  cfg,
		root: cfg.AssetsDir(workspace),
	}
}

func (r *Renderer) ensureDir(slug string) (string, error) {
	dir := filepath.Join(r.root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create asset dir %s: %w", dir, err)
	}
	return dir, nil
}

// record writes the asset row. The files already exist on disk when this
// runs, so the returned Output stays valid even if bookkeeping fails.
func (r *Renderer) record(out *Output, draftID, path string, meta map[string]interface{}) error {
	asset := &library.Asset{
		DraftID: draftID,
		Kind:    out.Kind,
		Path:    path,
		Meta:    meta,
	}
	if err := r.lib.SaveAsset(asset); err != nil {
		return fmt.Errorf("record %s asset: %w", out.Kind, err)
	}
	out.AssetID = asset.ID
	return nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases s and squeezes everything that is not a letter or a
// digit into single dashes. Returns "" when nothing usable remains.
func slugify(s string) string {
	s = slugStrip.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 48 {
		s = strings.Trim(s[:48], "-")
	}
	return s
}

// slugFor prefers a title slug and falls back to an ID prefix.
func slugFor(title, id string) string {
	if s := slugify(title); s != "" {
		return s
	}
	if len(id) >= 8 {
		return id[:8]
	}
	if id != "" {
		return id
	}
	return "untitled"
}
