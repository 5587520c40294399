package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"overtone/internal/config"
)

const defaultAnswerTimeout = 2 * time.Second

// commandContext carries the persistent flags and the lazily loaded
// configuration shared by every subcommand.
type commandContext struct {
	addrFlag    *string
	configFlag  *string
	timeoutFlag *time.Duration

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string, timeoutFlag *time.Duration) *commandContext {
	return &commandContext{
		addrFlag:    addrFlag,
		configFlag:  configFlag,
		timeoutFlag: timeoutFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = config.DefaultPath()
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// daemonAddr resolves the daemon's host:port: the --addr flag wins,
// otherwise the configured server bind.
func (c *commandContext) daemonAddr() (string, error) {
	if c.addrFlag != nil {
		if addr := strings.TrimSpace(*c.addrFlag); addr != "" {
			return addr, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Server.Bind, nil
}

func (c *commandContext) timeout() time.Duration {
	if c.timeoutFlag != nil && *c.timeoutFlag > 0 {
		return *c.timeoutFlag
	}
	return defaultAnswerTimeout
}

// withSurface dials the daemon as a remote surface, runs fn, and closes
// the connection.
func (c *commandContext) withSurface(cmd *cobra.Command, fn func(*remoteSurface) error) error {
	addr, err := c.daemonAddr()
	if err != nil {
		return err
	}
	rs, err := dialDaemon(cmd.Context(), addr, nil)
	if err != nil {
		return wrapDialError(err, addr)
	}
	defer rs.close()
	return fn(rs)
}

func wrapDialError(err error, addr string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; is overtoned running?", addr)
	}
	return fmt.Errorf("connect to daemon at %s: %w", addr, err)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
