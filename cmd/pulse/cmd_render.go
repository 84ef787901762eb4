package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pulsepress/internal/library"
	"pulsepress/internal/render"
)

var (
	renderIn    string
	renderDraft string
	renderPNG   bool
)

// =============================================================================
// RENDER COMMANDS
// =============================================================================

// renderCmd turns specs and carousel drafts into visual assets
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render charts, carousels and diagrams",
	Long: `Renders visual assets into .pulse/assets/<slug>/ and records them
in the library.

  render chart    --in spec.yaml   ECharts HTML (--png adds a screenshot)
  render carousel --draft <id>     1080x1350 slide PNGs from a carousel draft
  render diagram  --in spec.yaml   layered SVG flow diagram

Chart and diagram specs are YAML; drop them in .pulse/specs/ and
'pulse watch' re-renders them on save.`,
}

var renderChartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a chart spec to HTML (and optionally PNG)",
	RunE:  runRenderChart,
}

var renderCarouselCmd = &cobra.Command{
	Use:   "carousel",
	Short: "Render a carousel draft to slide PNGs",
	RunE:  runRenderCarousel,
}

var renderDiagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Render a diagram spec to SVG",
	RunE:  runRenderDiagram,
}

func runRenderChart(cmd *cobra.Command, args []string) error {
	if renderIn == "" {
		return fmt.Errorf("pass --in <spec.yaml>")
	}
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	spec, err := render.LoadChartSpec(renderIn)
	if err != nil {
		return err
	}
	draftID, err := renderDraftID(lib)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := render.NewRenderer(lib, cfg, ws).Chart(ctx, spec, draftID, renderPNG)
	if err != nil {
		return err
	}
	printOutput(out)
	return nil
}

func runRenderCarousel(cmd *cobra.Command, args []string) error {
	if renderDraft == "" {
		return fmt.Errorf("pass --draft <id> (a carousel draft)")
	}
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	draft, err := resolveDraft(lib, renderDraft)
	if err != nil {
		return err
	}

	out, err := render.NewRenderer(lib, cfg, ws).Carousel(draft.ID)
	if err != nil {
		return err
	}
	printOutput(out)
	return nil
}

func runRenderDiagram(cmd *cobra.Command, args []string) error {
	if renderIn == "" {
		return fmt.Errorf("pass --in <spec.yaml>")
	}
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	spec, err := render.LoadDiagramSpec(renderIn)
	if err != nil {
		return err
	}
	draftID, err := renderDraftID(lib)
	if err != nil {
		return err
	}

	out, err := render.NewRenderer(lib, cfg, ws).Diagram(spec, draftID)
	if err != nil {
		return err
	}
	printOutput(out)
	return nil
}

// renderDraftID resolves the --draft flag to a full draft ID, or "" when
// the asset is standalone.
func renderDraftID(lib *library.Library) (string, error) {
	if renderDraft == "" {
		return "", nil
	}
	draft, err := resolveDraft(lib, renderDraft)
	if err != nil {
		return "", err
	}
	return draft.ID, nil
}

func printOutput(out *render.Output) {
	fmt.Printf("Rendered %s %s\n", out.Kind, out.AssetID)
	for _, p := range out.Paths {
		fmt.Printf("  %s\n", p)
	}
}

func init() {
	renderChartCmd.Flags().StringVar(&renderIn, "in", "", "Chart spec YAML")
	renderChartCmd.Flags().StringVar(&renderDraft, "draft", "", "Attach the asset to a draft")
	renderChartCmd.Flags().BoolVar(&renderPNG, "png", false, "Also screenshot the chart to PNG (needs Chrome)")

	renderCarouselCmd.Flags().StringVar(&renderDraft, "draft", "", "Carousel draft to render")

	renderDiagramCmd.Flags().StringVar(&renderIn, "in", "", "Diagram spec YAML")
	renderDiagramCmd.Flags().StringVar(&renderDraft, "draft", "", "Attach the asset to a draft")

	renderCmd.AddCommand(renderChartCmd, renderCarouselCmd, renderDiagramCmd)
	rootCmd.AddCommand(renderCmd)
}
