package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Styles holds the lipgloss styles used for terminal output.  Writers that
// are not terminals get plain text.
type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Muted  lipgloss.Style
	OK     lipgloss.Style
	Error  lipgloss.Style
}

// NewStyles binds styles to w.
func NewStyles(w io.Writer, noColor bool) Styles {
	r := lipgloss.NewRenderer(w)
	if noColor {
		plain := r.NewStyle()
		return Styles{Title: plain, Header: plain, Muted: plain, OK: plain, Error: plain}
	}
	return Styles{
		Title:  r.NewStyle().Bold(true),
		Header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Muted:  r.NewStyle().Foreground(lipgloss.Color("8")),
		OK:     r.NewStyle().Foreground(lipgloss.Color("10")),
		Error:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

type textProvider interface {
	Text(s Styles) string
}

// PrintResult writes data in the selected output format.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd.OutOrStdout(), data)
	}
	out := cmd.OutOrStdout()
	switch cliCtx.OutputFormat {
	case "json":
		return printJSON(out, data)
	case "table":
		if tp, ok := data.(tableProvider); ok {
			_, err := fmt.Fprint(out, FormatTable(cliCtx.Styles, tp.TableHeaders(), tp.TableRows()))
			return err
		}
	}
	if tp, ok := data.(textProvider); ok {
		_, err := fmt.Fprintln(out, tp.Text(cliCtx.Styles))
		return err
	}
	_, err = fmt.Fprintf(out, "%+v\n", data)
	return err
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(data)
}

// PrintError writes err to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	s := NewStyles(cmd.ErrOrStderr(), false)
	fmt.Fprintln(cmd.ErrOrStderr(), s.Error.Render("Error:"), err.Error())
}

func plain(strs ...string) string { return strings.Join(strs, " ") }

// FormatTable lays rows out in aligned columns under a bold header.
func FormatTable(s Styles, headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	line := func(cells []string, render func(...string) string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			v := ""
			if i < len(cells) {
				v = cells[i]
			}
			padded := v + strings.Repeat(" ", widths[i]-lipgloss.Width(v))
			if i == len(headers)-1 {
				padded = v
			}
			sb.WriteString(render(padded))
		}
		sb.WriteString("\n")
	}

	line(headers, s.Header.Render)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	line(seps, s.Muted.Render)
	for _, row := range rows {
		line(row, plain)
	}
	return sb.String()
}
