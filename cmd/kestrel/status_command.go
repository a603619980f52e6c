package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"kestrel/internal/ipc"
	"kestrel/internal/orchestrator"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's runtime status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(resp.State)
				}
				return renderStatus(cmd, resp.State)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, s orchestrator.RuntimeState) error {
	rows := [][]string{
		{"Phase", string(s.Phase)},
		{"Mode", s.Mode},
		{"Run ID", s.RunID},
		{"Dry run", yesNo(s.DryRun)},
		{"Ticks", strconv.FormatInt(s.Ticks, 10)},
		{"Channel", strconv.Itoa(s.CurrentChannel)},
		{"Adapter present", yesNo(s.AdapterPresent)},
		{"Handshakes", strconv.FormatInt(s.HandshakesTotal, 10)},
		{"Rotations", strconv.FormatInt(s.RotationsTotal, 10)},
		{"Converted", strconv.FormatInt(s.ConvertTotal, 10)},
		{"Renamed", strconv.FormatInt(s.RenameTotal, 10)},
		{"Last SSID", s.LastSSID},
		{"Evidence", humanize.IBytes(uint64(max(s.EvidenceBytes, 0)))},
		{"Free space", humanize.IBytes(uint64(max(s.FreeBytes, 0)))},
		{"Low space", yesNo(s.LowSpace)},
		{"Temperature", formatTemperature(s)},
		{"Plugins", strconv.Itoa(s.PluginsEnabled)},
	}

	out := cmd.OutOrStdout()
	if isTerminal() {
		fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows))
		return nil
	}
	for _, row := range rows {
		fmt.Fprintf(out, "%s: %s\n", row[0], row[1])
	}
	return nil
}

func formatTemperature(s orchestrator.RuntimeState) string {
	if !s.TemperatureOK {
		return "unknown"
	}
	return fmt.Sprintf("%.1f°C", s.TemperatureC)
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
