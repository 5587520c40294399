package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"overtone/internal/bus"
	"overtone/internal/nowplaying"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var channels []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon broadcasts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ctx.daemonAddr()
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			rs, err := dialDaemon(cmd.Context(), addr, func(msg bus.Message) {
				if len(channels) > 0 && !lo.Contains(channels, msg.Channel) {
					return
				}
				fmt.Fprintf(stdout, "%s  %-17s %s\n",
					time.Now().Format("15:04:05"), msg.Channel, summarize(msg))
			})
			if err != nil {
				return wrapDialError(err, addr)
			}
			defer rs.close()

			select {
			case <-cmd.Context().Done():
				return nil
			case <-rs.readDone:
				return errors.New("connection closed by daemon")
			}
		},
	}
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "Only show these channels (repeatable)")
	return cmd
}

// summarize renders one broadcast as a single human line.
func summarize(msg bus.Message) string {
	switch p := msg.Payload.(type) {
	case nowplaying.NowPlaying:
		return p.String()
	case bus.Theme:
		return themeSummary(p)
	case bus.SourceModePayload:
		return p.Mode
	case bus.AppFilterPayload:
		return p.Value
	case bus.SurfaceState:
		labels := lo.Keys(p.Surfaces)
		sort.Strings(labels)
		parts := lo.Map(labels, func(label string, _ int) string {
			return fmt.Sprintf("%s=%s", label, yesNo(p.Surfaces[label]))
		})
		return strings.Join(parts, " ")
	case bus.ExportState:
		return exportSummary(p)
	case bus.ExportStatus:
		return fmt.Sprintf("%s: %s", p.Level, p.Message)
	case bus.AuthLostPayload:
		return "authorization lost, run `overtonectl connect`"
	default:
		return fmt.Sprintf("%v", p)
	}
}
