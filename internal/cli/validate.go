package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/parser"
	"github.com/osama-ammar/ray-scripts/internal/protocol"
	"github.com/osama-ammar/ray-scripts/internal/service"
)

var validateProtocolRoot string

var validateCmd = &cobra.Command{
	Use:   "validate <batch-file>",
	Short: "Check a batch file without touching the planning application",
	Long: `Parse a batch file and check every row: required columns, target/dose pairs,
the protocol beamset template and the planning structure workflow.

Nothing is sent to the planning application.

Examples:
  autoplan validate batch.csv
  autoplan validate batch.csv --protocol-root /mnt/protocols`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateProtocolRoot, "protocol-root", "", "directory protocol and preference paths are relative to")
}

func runValidate(cmd *cobra.Command, args []string) error {
	root := cfg.ProtocolRoot
	if validateProtocolRoot != "" {
		root = validateProtocolRoot
	}

	batch, err := parser.ReadBatchFile(args[0])
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}

	v := &validator{
		catalog: protocol.NewCatalog(root),
		presets: protocol.NewPresetSource(root),
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d rows, %d target columns\n\n", len(batch.Rows), batch.TargetPairs)

	invalid := 0
	for _, row := range batch.Rows {
		problems := v.check(cmd.Context(), row)
		printRowCheck(out, row, problems)
		if len(problems) > 0 {
			invalid++
		}
	}

	fmt.Fprintln(out)
	if invalid > 0 {
		err := fmt.Errorf("%d of %d rows have problems", invalid, len(batch.Rows))
		fmt.Fprintln(out, defaultTheme.errorStyle().Render("✗ "+err.Error()))
		return reportedError{err}
	}
	fmt.Fprintln(out, defaultTheme.completedStyle().Render("✓ All rows valid"))
	return nil
}

// validator checks rows against local protocol and preference files.
type validator struct {
	catalog *protocol.Catalog
	presets *protocol.PresetSource
}

func (v *validator) check(ctx context.Context, row models.JobRow) []string {
	if row.Err != nil {
		return []string{row.Err.Error()}
	}

	var problems []string
	tmpl, err := v.catalog.Template(ctx, service.TemplateRef(row))
	switch {
	case errors.Is(err, protocol.ErrTemplateNotFound):
		msg := fmt.Sprintf("protocol beamset %s not found", row.ProtocolBeamset)
		if row.BeamsetFile != "" {
			if names, err := v.catalog.BeamSetNames(row.BeamsetPath, row.BeamsetFile); err == nil && len(names) > 0 {
				msg += fmt.Sprintf(" (available: %s)", strings.Join(names, ", "))
			}
		}
		problems = append(problems, msg)
	case err != nil:
		problems = append(problems, fmt.Sprintf("protocol: %v", err))
	default:
		if _, err := service.BuildDefinition(row, row.BeamsetName, tmpl); err != nil {
			problems = append(problems, fmt.Sprintf("beamset definition: %v", err))
		}
	}

	if row.HasWorkflow() {
		preset, err := v.presets.Preset(ctx, row.PlanningStructurePath, row.PlanningStructureFile, row.PlanningStructureWorkflow)
		switch {
		case errors.Is(err, protocol.ErrPresetNotFound):
			problems = append(problems, fmt.Sprintf("planning structure workflow %s not found", row.PlanningStructureWorkflow))
		case err != nil:
			problems = append(problems, fmt.Sprintf("preferences: %v", err))
		default:
			if _, err := service.TranslatePreset(row, preset); err != nil {
				problems = append(problems, fmt.Sprintf("workflow %s: %v", row.PlanningStructureWorkflow, err))
			}
		}
	}
	return problems
}

func printRowCheck(w io.Writer, row models.JobRow, problems []string) {
	targets := make([]string, 0, len(row.Targets))
	for _, t := range row.Targets {
		targets = append(targets, fmt.Sprintf("%s=%g", t.Name, t.Dose))
	}

	mark := defaultTheme.completedStyle().Render("✓")
	if len(problems) > 0 {
		mark = defaultTheme.errorStyle().Render("✗")
	}
	fmt.Fprintf(w, "%s line %d: %s %s/%s/%s [%s]\n", mark, row.Line, row.PatientID,
		row.Case, row.PlanName, row.BeamsetName, strings.Join(targets, ", "))
	for _, p := range problems {
		fmt.Fprintf(w, "    - %s\n", p)
	}
}
