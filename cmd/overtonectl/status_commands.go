package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"overtone/internal/bus"
	"overtone/internal/nowplaying"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's state at a glance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				timeout := ctx.timeout()
				rows := make([][]string, 0, 8)

				mode := "unknown"
				if msg, err := rs.request(bus.ChannelRequestSourceMode, bus.ChannelSourceModeUpdate, timeout); err == nil {
					mode = msg.Payload.(bus.SourceModePayload).Mode
				}
				rows = append(rows, []string{"Source mode", mode})

				filter := "unknown"
				if msg, err := rs.request(bus.ChannelRequestAppFilter, bus.ChannelAppFilterUpdate, timeout); err == nil {
					filter = msg.Payload.(bus.AppFilterPayload).Value
				}
				rows = append(rows, []string{"App filter", filter})

				if msg, err := rs.request(bus.ChannelRequestTheme, bus.ChannelThemeUpdate, timeout); err == nil {
					t := msg.Payload.(bus.Theme)
					rows = append(rows, []string{"Theme", themeSummary(t)})
				}

				if msg, ok := rs.seed(bus.ChannelExportState, timeout); ok {
					rows = append(rows, []string{"Export", exportSummary(msg.Payload.(bus.ExportState))})
				}

				if msg, ok := rs.seed(bus.ChannelSurfaceState, timeout); ok {
					state := msg.Payload.(bus.SurfaceState)
					rows = append(rows, []string{"Surfaces open", openSurfaces(state)})
				}

				playing := "unknown"
				if msg, ok := rs.seed(bus.ChannelNowPlayingUpdate, timeout); ok {
					playing = msg.Payload.(nowplaying.NowPlaying).String()
				}
				rows = append(rows, []string{"Now playing", playing})

				stdout := cmd.OutOrStdout()
				fmt.Fprintln(stdout, renderTable(stdout, []string{"Setting", "Value"}, rows,
					[]columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newNowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Print the current now-playing record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				msg, ok := rs.seed(bus.ChannelNowPlayingUpdate, ctx.timeout())
				if !ok {
					return errors.New("daemon never reported a now-playing record")
				}
				np := msg.Payload.(nowplaying.NowPlaying)
				stdout := cmd.OutOrStdout()

				if jsonOut {
					data, err := json.MarshalIndent(np, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(stdout, string(data))
					return nil
				}

				if !np.IsPlaying {
					fmt.Fprintln(stdout, "Nothing playing")
					return nil
				}
				fmt.Fprintln(stdout, np.String())
				if np.Album != "" {
					fmt.Fprintf(stdout, "Album:  %s\n", np.Album)
				}
				if np.SourceAppID != "" {
					fmt.Fprintf(stdout, "Source: %s\n", np.SourceAppID)
				}
				if art := np.ArtworkURL; art != "" {
					fmt.Fprintf(stdout, "Art:    %s\n", art)
				} else if np.ArtworkPath != "" {
					fmt.Fprintf(stdout, "Art:    %s\n", np.ArtworkPath)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the raw record as JSON")
	return cmd
}

func themeSummary(t bus.Theme) string {
	return fmt.Sprintf("bg %s, title %s, meta %s", t.Background, t.Title, t.Meta)
}

func exportSummary(state bus.ExportState) string {
	if !state.Enabled {
		return "off"
	}
	if state.Dir == "" {
		return "on (directory picked at first export)"
	}
	return "on, " + state.Dir
}

func openSurfaces(state bus.SurfaceState) string {
	open := lo.Keys(lo.PickByValues(state.Surfaces, []bool{true}))
	if len(open) == 0 {
		return "none"
	}
	sort.Strings(open)
	return strings.Join(open, ", ")
}
