package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/protocol"
	"github.com/osama-ammar/ray-scripts/internal/service"
)

var presetsCmd = &cobra.Command{
	Use:   "presets <preferences-file> [workflow]",
	Short: "List planning structure workflows or show one",
	Long: `List the planning structure workflows defined in a preferences file (XML or YAML).
With a workflow name, show the region request it translates to.

Examples:
  autoplan presets planning_structs.xml
  autoplan presets planning_structs.yaml HN_Standard`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPresets,
}

func runPresets(cmd *cobra.Command, args []string) error {
	dir, file := filepath.Split(args[0])
	source := protocol.NewPresetSource("")
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		names, err := source.Workflows(dir, file)
		if err != nil {
			return fmt.Errorf("list workflows: %w", err)
		}
		if len(names) == 0 {
			fmt.Fprintln(out, "No workflows found")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	preset, err := source.Preset(cmd.Context(), dir, file, args[1])
	if err != nil {
		return err
	}
	// Targets come from batch rows, so the request is shown without them.
	req, err := service.TranslatePreset(models.JobRow{}, preset)
	if err != nil {
		return fmt.Errorf("translate workflow %s: %w", args[1], err)
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("encode region request: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
