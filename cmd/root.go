package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentic-research/cspec/internal/config"
	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/pipeline"
	"github.com/agentic-research/cspec/internal/store"
	"github.com/agentic-research/cspec/internal/writeback"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	permissive bool
	logLevel   string

	// cfg is resolved in PersistentPreRunE: file, then .env and environment, then flags.
	cfg config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite entity store")
	rootCmd.PersistentFlags().BoolVar(&permissive, "permissive", false, "Downgrade unresolved relationship targets to warnings and validate past parse errors")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

var rootCmd = &cobra.Command{
	Use:           "cspec",
	Short:         "Validate content specs and push their topics to an entity store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			loaded.Database = dbPath
		}
		if cmd.Flags().Changed("permissive") {
			loaded.Validation.Permissive = permissive
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		cfg = loaded

		logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
		cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		Parser:     cfg.ParserConfig(),
		Validation: cfg.ValidateConfig(),
		CacheSize:  cfg.CacheSize,
	}
}

func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Database, err)
	}
	return s, nil
}

// hostFile splits path into an OS filesystem rooted at its directory and the
// base name within it.
func hostFile(path string) (billy.Filesystem, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs), nil
}

// readSource reads a content spec from path, or from stdin when path is "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	fs, name, err := hostFile(path)
	if err != nil {
		return "", err
	}
	b, err := writeback.ReadFile(fs, name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// printLog writes every diagnostic as "<source>:<entry>".
func printLog(w io.Writer, source string, log *diag.Log) {
	if log == nil {
		return
	}
	for _, e := range log.Entries() {
		fmt.Fprintf(w, "%s: %s\n", source, e)
	}
}
