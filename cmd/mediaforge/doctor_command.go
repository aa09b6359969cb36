package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mediaforge/internal/codec/vips"
	"mediaforge/internal/config"
)

type doctorRow struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the external tools can be found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := ctx.config.DetectLayout()
			statuses := ctx.config.Tools.Resolve(layout).Check()
			rows := doctorRows(statuses)

			missing := 0
			for _, r := range rows {
				if !r.Available && !r.Optional {
					missing++
				}
			}

			if ctx.wantJSON() {
				if err := writeJSON(cmd, rows); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				color := colorEnabled(out)
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					status := paint(color, text.Colors{text.FgGreen}, "ok")
					switch {
					case !r.Available && r.Optional:
						status = paint(color, text.Colors{text.FgYellow}, "missing (optional)")
					case !r.Available:
						status = paint(color, text.Colors{text.FgRed}, "missing")
					}
					table = append(table, []string{r.Name, status, r.Detail, r.Description})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Tool", "Status", "Detail", "Used for"},
					table,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				if layout.Packaged {
					fmt.Fprintf(out, "Bundled tools from %s\n", filepath.Join(layout.ExeDir, "resources"))
				}
			}

			if missing > 0 {
				return errors.New("required tools are missing")
			}
			return nil
		},
	}
}

func doctorRows(statuses []config.ToolStatus) []doctorRow {
	rows := make([]doctorRow, 0, len(statuses)+1)
	rows = append(rows, doctorRow{
		Name:        "libvips",
		Description: "image conversion and slimming",
		Available:   vips.Version() != "",
		Detail:      "version " + vips.Version(),
	})
	for _, s := range statuses {
		rows = append(rows, doctorRow{
			Name:        s.Name,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		})
	}
	return rows
}
