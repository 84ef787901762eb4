package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	svg "github.com/ajstarks/svgo"
	"gopkg.in/yaml.v3"

	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// DiagramSpec is the YAML description of a flow diagram.
type DiagramSpec struct {
	Title string        `yaml:"title"`
	Nodes []DiagramNode `yaml:"nodes"`
	Edges []DiagramEdge `yaml:"edges"`
}

// DiagramNode is one box. Group is optional and only affects the fill.
type DiagramNode struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Group string `yaml:"group"`
}

// DiagramEdge is a directed arrow between two node IDs.
type DiagramEdge struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Label string `yaml:"label"`
}

// LoadDiagramSpec reads and validates a diagram spec file.
func LoadDiagramSpec(path string) (*DiagramSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read diagram spec: %w", err)
	}
	var spec DiagramSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse diagram spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("diagram spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks node IDs are unique and edges reference known nodes.
func (s *DiagramSpec) Validate() error {
	if s.Title == "" {
		return errors.New("diagram needs a title")
	}
	if len(s.Nodes) == 0 {
		return errors.New("diagram needs at least one node")
	}
	seen := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return errors.New("diagram node without an id")
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	for _, e := range s.Edges {
		if !seen[e.From] {
			return fmt.Errorf("edge from unknown node %q", e.From)
		}
		if !seen[e.To] {
			return fmt.Errorf("edge to unknown node %q", e.To)
		}
	}
	return nil
}

// Layout geometry, in SVG user units.
const (
	nodeW         = 200
	nodeH         = 64
	diagramColGap = 110
	diagramRowGap = 40
	diagramMargin = 48
	diagramTitleH = 70
	legendRowH    = 44
)

// groupFills are the node fills cycled through per group, tuned for the
// default dark background. Ungrouped nodes stay background-filled.
var groupFills = []string{"#1c2b44", "#1e3a34", "#3a2b3d", "#37342a", "#24384a", "#2b2b45"}

type nodeBox struct {
	x, y int
}

// Diagram renders a flow spec to a layered SVG. Nodes sit in columns by
// dependency depth, so every arrow points right.
func (r *Renderer) Diagram(spec *DiagramSpec, draftID string) (*Output, error) {
	if spec == nil {
		return nil, errors.New("nil diagram spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	depth, err := diagramColumns(spec)
	if err != nil {
		return nil, err
	}

	// Bucket nodes per column, keeping spec order within each.
	maxCol := 0
	for _, d := range depth {
		if d > maxCol {
			maxCol = d
		}
	}
	byCol := make([][]DiagramNode, maxCol+1)
	for _, n := range spec.Nodes {
		c := depth[n.ID]
		byCol[c] = append(byCol[c], n)
	}
	maxRows := 0
	for _, col := range byCol {
		if len(col) > maxRows {
			maxRows = len(col)
		}
	}

	groups := diagramGroups(spec)
	fills := make(map[string]string, len(groups))
	for i, g := range groups {
		fills[g] = groupFills[i%len(groupFills)]
	}
	legendH := 0
	if len(groups) > 0 {
		legendH = legendRowH
	}

	width := diagramMargin*2 + (maxCol+1)*nodeW + maxCol*diagramColGap
	height := diagramMargin*2 + diagramTitleH + maxRows*nodeH + (maxRows-1)*diagramRowGap + legendH

	// Center each column vertically inside the node band.
	band := height - diagramMargin*2 - diagramTitleH - legendH
	pos := make(map[string]nodeBox, len(spec.Nodes))
	for c, col := range byCol {
		colH := len(col)*nodeH + (len(col)-1)*diagramRowGap
		y := diagramMargin + diagramTitleH + (band-colH)/2
		x := diagramMargin + c*(nodeW+diagramColGap)
		for _, n := range col {
			pos[n.ID] = nodeBox{x: x, y: y}
			y += nodeH + diagramRowGap
		}
	}

	brand := r.cfg.Render.Brand
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:"+brand.Background)
	canvas.Text(diagramMargin, diagramMargin+26, spec.Title,
		"font-family:sans-serif;font-size:26px;font-weight:bold;fill:"+brand.Text)

	canvas.Def()
	canvas.Marker("arrow", 10, 5, 12, 10, `orient="auto"`, `markerUnits="userSpaceOnUse"`)
	canvas.Path("M0,0 L10,5 L0,10 z", "fill:"+brand.Accent)
	canvas.MarkerEnd()
	canvas.DefEnd()

	// Edges go under the boxes.
	for _, e := range spec.Edges {
		from := pos[e.From]
		to := pos[e.To]
		x1 := from.x + nodeW
		y1 := from.y + nodeH/2
		x2 := to.x - 4
		y2 := to.y + nodeH/2
		canvas.Line(x1, y1, x2, y2,
			"stroke:"+brand.Accent+";stroke-width:2;marker-end:url(#arrow)")
		if e.Label != "" {
			canvas.Text((x1+x2)/2, (y1+y2)/2-10, e.Label,
				"font-family:sans-serif;font-size:14px;fill:"+brand.Text+";text-anchor:middle")
		}
	}

	for _, n := range spec.Nodes {
		b := pos[n.ID]
		fill := brand.Background
		if n.Group != "" {
			fill = fills[n.Group]
		}
		label := n.Label
		if label == "" {
			label = n.ID
		}
		canvas.Roundrect(b.x, b.y, nodeW, nodeH, 10, 10,
			"fill:"+fill+";stroke:"+brand.Accent+";stroke-width:2")
		canvas.Text(b.x+nodeW/2, b.y+nodeH/2+6, label,
			"font-family:sans-serif;font-size:17px;fill:"+brand.Text+";text-anchor:middle")
	}

	if len(groups) > 0 {
		x := diagramMargin
		y := height - diagramMargin - 10
		for _, g := range groups {
			canvas.Rect(x, y-14, 20, 14, "fill:"+fills[g]+";stroke:"+brand.Accent)
			canvas.Text(x+28, y-2, g,
				"font-family:sans-serif;font-size:15px;fill:"+brand.Text)
			x += 28 + 9*len(g) + 40
		}
	}
	canvas.End()

	dir, err := r.ensureDir(slugFor(spec.Title, draftID))
	if err != nil {
		return nil, err
	}
	svgPath := filepath.Join(dir, "diagram.svg")
	if err := os.WriteFile(svgPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", svgPath, err)
	}

	out := &Output{Kind: library.AssetDiagram, Dir: dir, Paths: []string{svgPath}}
	meta := map[string]interface{}{
		"nodes":   len(spec.Nodes),
		"edges":   len(spec.Edges),
		"columns": maxCol + 1,
	}
	if err := r.record(out, draftID, svgPath, meta); err != nil {
		return nil, err
	}
	logging.Render("Diagram %q: %d nodes in %d columns -> %s",
		spec.Title, len(spec.Nodes), maxCol+1, svgPath)
	return out, nil
}

// diagramColumns assigns each node the length of the longest edge chain
// leading to it, so an edge always lands in a later column than it left.
func diagramColumns(spec *DiagramSpec) (map[string]int, error) {
	incoming := make(map[string][]string)
	for _, e := range spec.Edges {
		incoming[e.To] = append(incoming[e.To], e.From)
	}

	const (
		visiting = 1
		done     = 2
	)
	depth := make(map[string]int, len(spec.Nodes))
	state := make(map[string]int, len(spec.Nodes))

	var visit func(id string) (int, error)
	visit = func(id string) (int, error) {
		switch state[id] {
		case visiting:
			return 0, fmt.Errorf("diagram has a cycle through %q", id)
		case done:
			return depth[id], nil
		}
		state[id] = visiting
		d := 0
		for _, from := range incoming[id] {
			fd, err := visit(from)
			if err != nil {
				return 0, err
			}
			if fd+1 > d {
				d = fd + 1
			}
		}
		state[id] = done
		depth[id] = d
		return d, nil
	}

	for _, n := range spec.Nodes {
		if _, err := visit(n.ID); err != nil {
			return nil, err
		}
	}
	return depth, nil
}

// diagramGroups returns the distinct groups in first-appearance order.
func diagramGroups(spec *DiagramSpec) []string {
	var groups []string
	seen := make(map[string]bool)
	for _, n := range spec.Nodes {
		if n.Group == "" || seen[n.Group] {
			continue
		}
		seen[n.Group] = true
		groups = append(groups, n.Group)
	}
	return groups
}
