// Package commands implements CLI command handlers for sqltree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sqltree/pkg/cache"
	"github.com/Sumatoshi-tech/sqltree/pkg/config"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
	"github.com/Sumatoshi-tech/sqltree/pkg/version"
)

// Persistent flag names defined on the root command.
const (
	FlagConfig  = "config"
	FlagVerbose = "verbose"
)

var (
	// ErrDirectoryPath indicates a file operation was attempted on a directory.
	ErrDirectoryPath = errors.New("path points to a directory")
	// ErrEmptyPath indicates a path argument was empty.
	ErrEmptyPath = errors.New("path is empty")
	// ErrPathContainsNUL indicates the path contains a NUL byte.
	ErrPathContainsNUL = errors.New("path contains NUL byte")
)

// env bundles what every long-running command needs.
type env struct {
	cfg       *config.Config
	providers observability.Providers
}

// setup loads configuration and starts telemetry for mode. The caller must
// call close.
func setup(cmd *cobra.Command, mode observability.AppMode) (*env, error) {
	cfg, err := config.LoadConfig(flagValue(cmd, FlagConfig))
	if err != nil {
		return nil, err
	}

	obsCfg := cfg.Observability(mode, version.Version)
	if flagValue(cmd, FlagVerbose) == "true" {
		obsCfg.LogLevel = slog.LevelDebug
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &env{cfg: cfg, providers: providers}, nil
}

func (e *env) close() {
	err := e.providers.Shutdown(context.Background())
	if err != nil {
		e.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// session builds an instrumented parser session for grammar.
func (e *env) session(engine syntax.Engine, grammar string) *session.Session {
	return session.New(engine, grammar,
		session.WithTracer(e.providers.Tracer),
		session.WithMetrics(e.providers.Metrics),
		session.WithLogger(e.providers.Logger),
	)
}

// projections returns the configured projection cache, or nil when
// cache_bytes is zero.
func (e *env) projections() *cache.Projections {
	if e.cfg.CacheBytes == 0 {
		return nil
	}

	return cache.New(e.cfg.CacheBytes)
}

// flagValue reads a local or inherited flag, returning "" when the command
// does not define it.
func flagValue(cmd *cobra.Command, name string) string {
	flag := cmd.Flag(name)
	if flag == nil {
		return ""
	}

	return flag.Value.String()
}

func safeReadFile(path string) (content []byte, resolvedPath string, err error) {
	resolvedPath, err = resolveUserFilePath(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve path %q: %w", path, err)
	}

	//nolint:gosec // resolvedPath is normalized and existence/type checked in resolveUserFilePath.
	content, err = os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", resolvedPath, err)
	}

	return content, resolvedPath, nil
}

func resolveUserFilePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}

	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("%w: %q", ErrPathContainsNUL, path)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", absPath, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDirectoryPath, absPath)
	}

	return absPath, nil
}
