package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func newCutCmd() *cobra.Command {
	var (
		threshold float64
		weights   []float64
		title     string
	)
	cmd := &cobra.Command{
		Use:   "cut SMILES...",
		Short: "Split molecules at every weak acyclic bond outside functional groups",
		Long: "Cut removes every acyclic bond whose bond order is below the threshold and\n" +
			"that is not part of a functional group, then prints the unique pieces.\n" +
			"Bond orders are read from --wbo (one per bond, input order) or estimated.",
		Example: "  fragmenter cut CCCCO --wbo 1,1,1,1\n" +
			"  fragmenter cut 'c1ccccc1CCO' --threshold 1.1 -o json",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(weights) > 0 && len(args) > 1 {
				return errors.New(errors.ErrCodeValidation, "--wbo needs exactly one SMILES argument")
			}
			c, _, err := container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results := make([]*fragmentation.CutResult, 0, len(args))
			for i, s := range args {
				in := fragmentation.Input{SMILES: s, Weights: weights, Title: title}
				if in.Title == "" {
					in.Title = "mol" + strconv.Itoa(i+1)
				}
				res, err := c.Service.Cut(cmd.Context(), in, threshold)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			return PrintResult(cmd, cutView(results))
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "bond order threshold (default 1.2)")
	cmd.Flags().Float64SliceVar(&weights, "wbo", nil, "per-bond Wiberg bond orders, comma separated")
	cmd.Flags().StringVar(&title, "title", "", "title of a single molecule")
	return cmd
}

type cutView []*fragmentation.CutResult

func (v cutView) MarshalJSON() ([]byte, error) { return json.Marshal([]*fragmentation.CutResult(v)) }

func (v cutView) TableHeaders() []string {
	return []string{"TITLE", "PARENT", "PIECES", "FRAGMENTS"}
}

func (v cutView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		rows = append(rows, []string{r.Title, r.ParentSMILES, strconv.Itoa(r.Pieces), strings.Join(r.Fragments, " ")})
	}
	return rows
}

func (v cutView) Text(s Styles) string {
	var sb strings.Builder
	for i, r := range v {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s  %s\n", s.Title.Render(r.Title), s.Muted.Render(r.ParentSMILES))
		for _, f := range r.Fragments {
			fmt.Fprintf(&sb, "    %s\n", f)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
