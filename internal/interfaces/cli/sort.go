package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/chem/molfile"
	"github.com/turtacn/torsion-fragmenter/internal/chem/smiles"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func newSortCmd() *cobra.Command {
	var outDir, weightTag string
	cmd := &cobra.Command{
		Use:   "sort INPUT",
		Short: "Bin molecules by rotatable bond count",
		Long: "Sort writes one SMILES file per rotor count into --out, named nrotor_<n>.smi.\n" +
			"Each line holds the canonical SMILES and the molecule title.",
		Example: "  fragmenter sort library.sdf --out bins/",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			mols, err := readMolecules(args[0], weightTag, cliCtx.Logger)
			if err != nil {
				return err
			}
			bins := fragmentation.SortByRotors(mols)
			files, err := writeRotorBins(outDir, bins)
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("molecules sorted",
				logging.Int("molecules", len(mols)), logging.Int("bins", len(bins)), logging.String("out", outDir))
			return PrintResult(cmd, sortView(files))
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.Flags().StringVar(&weightTag, "weight-tag", molfile.DefaultWeightTag, "SD field holding per-bond Wiberg bond orders")
	return cmd
}

type binFile struct {
	Rotors    int    `json:"rotors"`
	Molecules int    `json:"molecules"`
	Path      string `json:"path"`
}

func writeRotorBins(dir string, bins []fragmentation.RotorBin) ([]binFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "create output directory").WithDetail(dir)
	}
	out := make([]binFile, 0, len(bins))
	for _, b := range bins {
		path := filepath.Join(dir, fmt.Sprintf("nrotor_%d.smi", b.Rotors))
		if err := writeBin(path, b); err != nil {
			return nil, err
		}
		out = append(out, binFile{Rotors: b.Rotors, Molecules: len(b.Molecules), Path: path})
	}
	return out, nil
}

func writeBin(path string, b fragmentation.RotorBin) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create bin file").WithDetail(path)
	}
	w := bufio.NewWriter(f)
	for _, m := range b.Molecules {
		fmt.Fprintf(w, "%s %s\n", smiles.Canonical(m), m.Title)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeInternal, "write bin file").WithDetail(path)
	}
	return f.Close()
}

type sortView []binFile

func (v sortView) TableHeaders() []string { return []string{"ROTORS", "MOLECULES", "FILE"} }

func (v sortView) TableRows() [][]string {
	rows := make([][]string, len(v))
	for i, b := range v {
		rows[i] = []string{strconv.Itoa(b.Rotors), strconv.Itoa(b.Molecules), b.Path}
	}
	return rows
}

func (v sortView) Text(s Styles) string {
	return strings.TrimRight(FormatTable(s, v.TableHeaders(), v.TableRows()), "\n")
}
