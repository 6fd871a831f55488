package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/chem/molfile"
	"github.com/turtacn/torsion-fragmenter/internal/config"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// fragmentFlags are the request options shared by fragment and watch.
type fragmentFlags struct {
	combinatorial   bool
	maxRotors       int
	minRotors       int
	threshold       float64
	maxCombinations int
	estimateWBO     bool
	weightTag       string
}

func (f *fragmentFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&f.combinatorial, "combinatorial", true, "also emit combinations of neighbouring rotor fragments")
	fs.IntVar(&f.maxRotors, "max-rotors", 0, "largest rotor count of a combined fragment (default from config)")
	fs.IntVar(&f.minRotors, "min-rotors", 0, "smallest rotor count of a combined fragment (default from config)")
	fs.Float64Var(&f.threshold, "threshold", 0, "bond order threshold (default from config)")
	fs.IntVar(&f.maxCombinations, "max-combinations", 0, "cap on combinations per molecule, 0 for none")
	fs.BoolVar(&f.estimateWBO, "estimate-wbo", false, "estimate missing bond orders from the bond graph")
	fs.StringVar(&f.weightTag, "weight-tag", molfile.DefaultWeightTag, "SD field holding per-bond Wiberg bond orders")
}

// apply overlays the flags the user set on the configured defaults.
func (f *fragmentFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	fc := &cfg.Fragmenter
	if fs.Changed("combinatorial") {
		fc.Combinatorial = f.combinatorial
	}
	if fs.Changed("max-rotors") {
		fc.MaxRotors = f.maxRotors
	}
	if fs.Changed("min-rotors") {
		fc.MinRotors = f.minRotors
	}
	if fs.Changed("threshold") {
		fc.WBOThreshold = f.threshold
	}
	if fs.Changed("max-combinations") {
		fc.MaxCombinations = f.maxCombinations
	}
	if f.estimateWBO {
		fc.EstimateWBO = true
	}
}

func newFragmentCmd() *cobra.Command {
	flags := &fragmentFlags{}
	var jsonOut, depictDir string

	cmd := &cobra.Command{
		Use:   "fragment INPUT",
		Short: "Fragment every molecule of a SMILES or SD file around its rotatable bonds",
		Long: "Fragment reads a .smi or .sdf file and grows one fragment per rotatable bond.\n" +
			"Bond orders come from the input (SD field --weight-tag) or, with --estimate-wbo,\n" +
			"from a topological estimate.  The provenance report is written as JSON.",
		Example: "  fragmenter fragment mols.sdf --json frags.json --depict out/\n" +
			"  fragmenter fragment ligands.smi --estimate-wbo --max-rotors 2 -o table",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			flags.apply(cmd.Flags(), cliCtx.Config)
			var extra []fragmentation.Option
			if depictDir != "" {
				store, err := newDirStore(depictDir)
				if err != nil {
					return err
				}
				extra = append(extra, fragmentation.WithReportStore(store))
			}
			c, _, err := container(cmd, extra...)
			if err != nil {
				return err
			}
			defer c.Close()

			opts := c.Options()
			opts.Depict = depictDir != ""
			report, err := runFragment(cmd.Context(), c.Service, args[0], flags.weightTag, opts, cliCtx.Logger)
			if err != nil {
				return err
			}

			if jsonOut != "" {
				if err := writeReport(jsonOut, report); err != nil {
					return err
				}
				cliCtx.Logger.Info("report written", logging.String("path", jsonOut))
			}
			if cliCtx.OutputFormat == "json" {
				if jsonOut != "" {
					return nil
				}
				return printJSON(cmd.OutOrStdout(), report)
			}
			return PrintResult(cmd, reportView{report})
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&jsonOut, "json", "", "write the provenance report to this file")
	cmd.Flags().StringVar(&depictDir, "depict", "", "write a PNG depiction per molecule into this directory")
	return cmd
}

func runFragment(ctx context.Context, svc fragmentation.Service, path, weightTag string, opts fragmentation.Options, log logging.Logger) (*fragmentation.Report, error) {
	inputs, err := readInputs(path, weightTag)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errors.New(errors.ErrCodeFragNoMolecules, errors.DefaultMessageForCode(errors.ErrCodeFragNoMolecules)).WithDetail(path)
	}
	log.Debug("fragmenting file", logging.String("path", path), logging.Int("molecules", len(inputs)))
	return svc.Generate(ctx, inputs, opts)
}

// writeReport writes report as indented JSON with sorted keys.
func writeReport(path string, report *fragmentation.Report) error {
	doc, err := report.MarshalIndent()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "create output directory").WithDetail(dir)
		}
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "write report").WithDetail(path)
	}
	return nil
}

// reportView renders a report for the text and table formats.  JSON output
// uses the report itself.
type reportView struct {
	report *fragmentation.Report
}

func (v reportView) MarshalJSON() ([]byte, error) { return json.Marshal(v.report) }

func (v reportView) TableHeaders() []string {
	return []string{"TITLE", "PARENT", "ROTORS", "FRAGMENTS", "COMBINATIONS", "STATUS"}
}

func (v reportView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.report.Results)+len(v.report.Skipped))
	for _, r := range v.report.Results {
		status := "fragmented"
		if r.Cached {
			status = "cached"
		}
		rows = append(rows, []string{
			r.Title, r.ParentSMILES,
			strconv.Itoa(len(r.Rotors)), strconv.Itoa(len(r.Fragments)), strconv.Itoa(r.Combinations),
			status,
		})
	}
	for _, s := range v.report.Skipped {
		rows = append(rows, []string{s.Title, "", "", "", "", "skipped: " + s.Code})
	}
	return rows
}

func (v reportView) Text(s Styles) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", s.Title.Render("job"), v.report.Provenance.JobID)
	for _, r := range v.report.Results {
		fmt.Fprintf(&sb, "%s %s  %s\n", s.OK.Render("✓"), r.Title, s.Muted.Render(r.ParentSMILES))
		for _, f := range r.Fragments {
			fmt.Fprintf(&sb, "    %s\n", f.SMILES)
		}
	}
	for _, sk := range v.report.Skipped {
		fmt.Fprintf(&sb, "%s %s  %s\n", s.Error.Render("✗"), sk.Title, s.Muted.Render(sk.Code+": "+sk.Reason))
	}
	fmt.Fprintf(&sb, "%d fragmented, %d skipped", len(v.report.Results), len(v.report.Skipped))
	return sb.String()
}
