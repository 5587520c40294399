package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"overtone/internal/bus"
)

func newSurfaceCommand(ctx *commandContext) *cobra.Command {
	surfaceCmd := &cobra.Command{
		Use:   "surface",
		Short: "Manage the auxiliary display surfaces",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured surfaces and whether they are open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				msg, ok := rs.seed(bus.ChannelSurfaceState, ctx.timeout())
				if !ok {
					return errors.New("daemon never reported surface state")
				}
				state := msg.Payload.(bus.SurfaceState)

				labels := lo.Keys(state.Surfaces)
				sort.Strings(labels)
				rows := lo.Map(labels, func(label string, _ int) []string {
					return []string{label, yesNo(state.Surfaces[label])}
				})

				stdout := cmd.OutOrStdout()
				fmt.Fprintln(stdout, renderTable(stdout, []string{"Surface", "Open"}, rows,
					[]columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	}

	surfaceCmd.AddCommand(listCmd)
	for _, action := range []string{"open", "close", "toggle"} {
		surfaceCmd.AddCommand(newSurfaceActionCommand(ctx, action))
	}
	return surfaceCmd
}

func newSurfaceActionCommand(ctx *commandContext, action string) *cobra.Command {
	short := map[string]string{
		"open":   "Open a surface window, focusing it if already open",
		"close":  "Close a surface window",
		"toggle": "Open the surface if closed, close it if open",
	}[action]

	return &cobra.Command{
		Use:   action + " <label>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := args[0]
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				rs.settle(bus.ChannelSurfaceState)
				msg, err := rs.next(bus.ChannelSurfaceState, ctx.timeout(), func() error {
					return rs.publish(bus.ChannelSurfaceCommand, bus.SurfaceCommand{
						Action: action,
						Label:  label,
					})
				})
				if err != nil {
					return fmt.Errorf("surface state not confirmed: %w", err)
				}

				state := msg.Payload.(bus.SurfaceState)
				open, known := state.Surfaces[label]
				if !known {
					labels := lo.Keys(state.Surfaces)
					sort.Strings(labels)
					return fmt.Errorf("unknown surface %q (configured: %v)", label, labels)
				}
				if open {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: open\n", label)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: closed\n", label)
				}
				return nil
			})
		},
	}
}
