package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"overtone/internal/bus"
	"overtone/internal/identity"
	"overtone/internal/source"
)

func newThemeCommand(ctx *commandContext) *cobra.Command {
	themeCmd := &cobra.Command{
		Use:   "theme",
		Short: "Read or change the display theme",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current theme colors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				msg, err := rs.request(bus.ChannelRequestTheme, bus.ChannelThemeUpdate, ctx.timeout())
				if err != nil {
					return err
				}
				printTheme(cmd, msg.Payload.(bus.Theme))
				return nil
			})
		},
	}

	var bg, title, meta string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change theme colors; unset flags keep their current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bg == "" && title == "" && meta == "" {
				return errors.New("nothing to change: pass --bg, --title or --meta")
			}
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				rs.settle(bus.ChannelThemeUpdate)
				msg, err := rs.next(bus.ChannelThemeUpdate, ctx.timeout(), func() error {
					return rs.publish(bus.ChannelThemeChange, bus.Theme{
						Background: bg,
						Title:      title,
						Meta:       meta,
					})
				})
				if err != nil {
					// An identical theme is applied without an update.
					if cached, ok := rs.latest(bus.ChannelThemeUpdate); ok {
						msg = cached
					} else {
						return fmt.Errorf("theme change not confirmed: %w", err)
					}
				}
				printTheme(cmd, msg.Payload.(bus.Theme))
				return nil
			})
		},
	}
	setCmd.Flags().StringVar(&bg, "bg", "", "Background color (hex)")
	setCmd.Flags().StringVar(&title, "title", "", "Track title color (hex)")
	setCmd.Flags().StringVar(&meta, "meta", "", "Artist and album color (hex)")

	themeCmd.AddCommand(getCmd)
	themeCmd.AddCommand(setCmd)
	return themeCmd
}

func printTheme(cmd *cobra.Command, t bus.Theme) {
	stdout := cmd.OutOrStdout()
	rows := [][]string{
		{"Background", t.Background},
		{"Title", t.Title},
		{"Meta", t.Meta},
	}
	fmt.Fprintln(stdout, renderTable(stdout, []string{"Color", "Value"}, rows,
		[]columnAlignment{alignLeft, alignLeft}))
}

func newSourceCommand(ctx *commandContext) *cobra.Command {
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Read or change the now-playing source mode",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the active source mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				msg, err := rs.request(bus.ChannelRequestSourceMode, bus.ChannelSourceModeUpdate, ctx.timeout())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg.Payload.(bus.SourceModePayload).Mode)
				return nil
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <push|poll>",
		Short: "Switch between the push and poll strategies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := source.ParseMode(args[0])
			if err != nil {
				return err
			}
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				rs.settle(bus.ChannelSourceModeUpdate)
				msg, err := rs.next(bus.ChannelSourceModeUpdate, ctx.timeout(), func() error {
					return rs.publish(bus.ChannelSourceModeUpdate, bus.SourceModePayload{Mode: mode.String()})
				})
				if err != nil {
					return fmt.Errorf("source mode not confirmed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source mode: %s\n", msg.Payload.(bus.SourceModePayload).Mode)
				return nil
			})
		},
	}

	sourceCmd.AddCommand(getCmd)
	sourceCmd.AddCommand(setCmd)
	return sourceCmd
}

func newFilterCommand(ctx *commandContext) *cobra.Command {
	filterCmd := &cobra.Command{
		Use:   "filter",
		Short: "Read or change the poll-source app filter",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the active app filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				msg, err := rs.request(bus.ChannelRequestAppFilter, bus.ChannelAppFilterUpdate, ctx.timeout())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg.Payload.(bus.AppFilterPayload).Value)
				return nil
			})
		},
	}

	categories := strings.Join(lo.Map(identity.Categories(), func(c identity.Category, _ int) string {
		return c.String()
	}), "|")
	setCmd := &cobra.Command{
		Use:   "set <" + categories + ">",
		Short: "Select which music app the poll source listens to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := identity.ParseCategory(args[0])
			if err != nil {
				return err
			}
			return ctx.withSurface(cmd, func(rs *remoteSurface) error {
				rs.settle(bus.ChannelAppFilterUpdate)
				msg, err := rs.next(bus.ChannelAppFilterUpdate, ctx.timeout(), func() error {
					return rs.publish(bus.ChannelAppFilterUpdate, bus.AppFilterPayload{Value: filter.String()})
				})
				if err != nil {
					return fmt.Errorf("app filter not confirmed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "App filter: %s\n", msg.Payload.(bus.AppFilterPayload).Value)
				return nil
			})
		},
	}

	filterCmd.AddCommand(getCmd)
	filterCmd.AddCommand(setCmd)
	return filterCmd
}
