// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"qlnotebook/cli/internal/notebook"
	"qlnotebook/cli/internal/output"
	"qlnotebook/cli/internal/render"
	"qlnotebook/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	showCell int
	showOpen int
)

// showCmd renders the stored outputs of a cell.
var showCmd = &cobra.Command{
	Use:   "show NOTEBOOK",
	Short: "Render the stored result of a cell",
	Long: `The show command prints the outputs a previous run stored in a cell. Result
tables are drawn with numbered links on entity values; pass --open N to follow
link N, which prints the source location it points to.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), args[0], false, false)
		if err != nil {
			return err
		}
		defer s.Close()
		doc, err := s.snapshot()
		if err != nil {
			return err
		}
		if showCell < 0 || showCell >= len(doc.Cells) {
			return fmt.Errorf("cell %d does not exist (notebook has %d cells)", showCell, len(doc.Cells))
		}
		return printCellOutput(doc.Cells[showCell], showOpen)
	},
}

// printCellOutput prints every output of c. When link is positive, the
// link with that number in the first result table is activated.
func printCellOutput(c notebook.Cell, link int) error {
	if c.Kind != notebook.Code {
		pterm.Println(pterm.Gray("(markup cell)"))
		return nil
	}
	if len(c.Outputs) == 0 {
		pterm.Println(pterm.Gray("(no outputs)"))
		return nil
	}
	for _, o := range c.Outputs {
		switch o := o.(type) {
		case output.Stream:
			pterm.Print(o.Text)
		case output.Error:
			pterm.Error.Printf("%s: %s\n", o.Name, o.Message)
			for _, l := range o.Traceback {
				pterm.Println(pterm.Gray("  " + l))
			}
		case output.Display:
			ref, ok, err := o.ResultReference()
			if err != nil {
				return err
			}
			if !ok {
				var text string
				if raw, has := o.Data[output.MIMEText]; has && json.Unmarshal(raw, &text) == nil {
					pterm.Println(text)
				} else {
					pterm.Println(pterm.Gray(fmt.Sprintf("(display: %v)", o.MIMETypes())))
				}
				continue
			}
			v := render.Render(ref, navigate)
			if err := render.Print(os.Stdout, v, terminal.Width()); err != nil {
				return err
			}
			if link > 0 {
				if err := v.ActivateLink(link); err != nil {
					return err
				}
				link = 0
			}
		}
	}
	return nil
}

// navigate is the terminal host's handling of a navigation message.
func navigate(n render.Navigation) {
	pterm.Info.Printf("%s\n", n.URL.String())
	if n.DatabaseIdentity != "" {
		pterm.Println(pterm.Gray("  database: " + n.DatabaseIdentity))
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&showCell, "cell", "c", 0, "Cell index")
	showCmd.Flags().IntVar(&showOpen, "open", 0, "Follow the link with this number")
}
