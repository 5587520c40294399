package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"overtone/internal/bus"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Control the once-per-track file export",
	}

	sendCommand := func(cmd *cobra.Command, command bus.ExportCommand) error {
		return ctx.withSurface(cmd, func(rs *remoteSurface) error {
			rs.settle(bus.ChannelExportState)
			msg, err := rs.next(bus.ChannelExportState, ctx.timeout(), func() error {
				return rs.publish(bus.ChannelExportCommand, command)
			})
			if err != nil {
				return fmt.Errorf("export state not confirmed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Export: %s\n", exportSummary(msg.Payload.(bus.ExportState)))
			return nil
		})
	}

	onCmd := &cobra.Command{
		Use:   "on",
		Short: "Enable exporting; the current track exports on its next observation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(cmd, bus.ExportCommand{Action: "enable"})
		},
	}

	offCmd := &cobra.Command{
		Use:   "off",
		Short: "Disable exporting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(cmd, bus.ExportCommand{Action: "disable"})
		},
	}

	var clear bool
	dirCmd := &cobra.Command{
		Use:   "dir [path]",
		Short: "Set the export directory, or --clear it to be prompted at the next export",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case clear && len(args) > 0:
				return errors.New("--clear takes no path argument")
			case clear:
				return sendCommand(cmd, bus.ExportCommand{Action: "clearDir"})
			case len(args) == 0:
				return errors.New("pass a directory path or --clear")
			}
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return sendCommand(cmd, bus.ExportCommand{Action: "setDir", Dir: dir})
		},
	}
	dirCmd.Flags().BoolVar(&clear, "clear", false, "Forget the directory; the daemon prompts at the next export")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the export configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				msg, ok := rs.seed(bus.ChannelExportState, ctx.timeout())
				if !ok {
					return errors.New("daemon never reported export state")
				}
				state := msg.Payload.(bus.ExportState)

				dir := state.Dir
				if dir == "" {
					dir = "(picked at first export)"
				}
				rows := [][]string{
					{"Enabled", yesNo(state.Enabled)},
					{"Directory", dir},
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintln(stdout, renderTable(stdout, []string{"Setting", "Value"}, rows,
					[]columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	}

	exportCmd.AddCommand(onCmd)
	exportCmd.AddCommand(offCmd)
	exportCmd.AddCommand(dirCmd)
	exportCmd.AddCommand(statusCmd)
	return exportCmd
}
