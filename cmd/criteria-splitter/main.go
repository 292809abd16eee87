package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theimaginaryfoundation/criteria-splitter/eligibility"
	"github.com/theimaginaryfoundation/criteria-splitter/eligibility/fileutils"
	"github.com/theimaginaryfoundation/criteria-splitter/eligibility/provider"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&app{cfg: defaultConfig()})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		var ce configError
		if errors.As(err, &ce) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// configError marks invalid invocations (exit code 2).
type configError struct{ error }

func (e configError) Unwrap() error { return e.error }

type app struct {
	cfg        Config
	configPath string
	verbose    bool

	log   *zap.Logger
	runID string

	// newStructurer is swapped in tests; nil means the OpenAI client.
	newStructurer func(cfg Config, log *zap.Logger) (eligibility.Structurer, error)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "criteria-splitter",
		Short: "Prepare and structure clinical trial eligibility criteria",
		Long: `criteria-splitter reads a delimited table of clinical trial eligibility criteria,
picks the best rendering of each cell (dropping the standard age questionnaire), and
optionally has a language model rewrite it as a numbered hierarchy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath != "" {
				if err := loadConfigFile(a.configPath, &a.cfg, cmd.Flags()); err != nil {
					return configError{err}
				}
			}

			zcfg := zap.NewProductionConfig()
			if a.verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.runID = uuid.NewString()
			a.log = logger.With(zap.String("run_id", a.runID), zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Optional YAML config file (flags set on the command line win)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(newPreselectCmd(a), newStructureCmd(a), newValidateCmd(a))
	return root
}

func newPreselectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "preselect",
		Short:   "Write the segment chosen for structuring next to each row (no model calls)",
		Example: `  criteria-splitter preselect --in studies.csv --out preselected.csv --output-column Segment`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateWrite(); err != nil {
				return configError{err}
			}
			return a.runTable(cmd.Context(), eligibility.SelectOnly, "")
		},
	}
	bindFlags(cmd.Flags(), &a.cfg)
	return cmd
}

func newStructureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "structure",
		Short: "Structure each row's criteria into numbered hierarchical text with a language model",
		Example: `  criteria-splitter structure --in studies.csv --out structured.csv --model gpt-4o-mini --cache cache.db
  criteria-splitter structure --in studies.csv --out structured.csv \
      --azure-endpoint https://example.openai.azure.com --azure-api-version 2024-10-21 --model gpt-4o`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyEnv(&a.cfg)
			if err := a.cfg.ValidateStructure(); err != nil {
				return configError{err}
			}

			newStructurer := a.newStructurer
			if newStructurer == nil {
				newStructurer = newOpenAIStructurer
			}
			s, err := newStructurer(a.cfg, a.log)
			if err != nil {
				return configError{err}
			}

			if a.cfg.CachePath != "" {
				cache, err := eligibility.OpenCache(a.cfg.CachePath)
				if err != nil {
					return err
				}
				defer cache.Close()
				s = eligibility.CachingStructurer{Next: s, Cache: cache, Model: a.cfg.Model}
			}
			return a.runTable(cmd.Context(), s, a.cfg.Model)
		},
	}
	bindFlags(cmd.Flags(), &a.cfg)
	bindModelFlags(cmd.Flags(), &a.cfg)
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "validate",
		Short:   "Check a structured table against the numbering format",
		Long: `validate re-reads a table written by preselect or structure. It is read with --output-delimiter
unless --input-delimiter is given on the command line.`,
		Example: `  criteria-splitter validate --in structured.csv --max-drift 0.05`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("input-delimiter") {
				a.cfg.InputDelimiter = a.cfg.OutputDelimiter
			}
			if err := a.cfg.Validate(); err != nil {
				return configError{err}
			}
			return a.runValidate(cmd.OutOrStdout())
		},
	}
	bindFlags(cmd.Flags(), &a.cfg)
	return cmd
}

func newOpenAIStructurer(cfg Config, log *zap.Logger) (eligibility.Structurer, error) {
	client, err := provider.NewClient(cfg.ClientConfig())
	if err != nil {
		return nil, err
	}
	return openAIStructurer{
		responses:       &client.Responses,
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		retry:           provider.DefaultRetryPolicy,
		log:             log,
	}, nil
}

type runReport struct {
	RunID        string                 `json:"run_id"`
	Input        string                 `json:"input"`
	Output       string                 `json:"output,omitempty"`
	Column       string                 `json:"column"`
	OutputColumn string                 `json:"output_column"`
	Model        string                 `json:"model,omitempty"`
	Stats        eligibility.TableStats `json:"stats"`
	Issues       []eligibility.RowIssue `json:"issues,omitempty"`
}

func (a *app) runTable(ctx context.Context, s eligibility.Structurer, model string) error {
	cfg := a.cfg
	if !cfg.Overwrite && fileutils.FileExists(cfg.OutPath) {
		return configError{fmt.Errorf("output already exists: %s (pass --overwrite)", cfg.OutPath)}
	}

	in, err := os.Open(cfg.InPath)
	if err != nil {
		return configError{fmt.Errorf("open --in: %w", err)}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		return fmt.Errorf("mkdir --out: %w", err)
	}
	out, err := os.OpenFile(cfg.OutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create --out: %w", err)
	}
	defer out.Close()

	a.log.Info("processing table",
		zap.String("in", cfg.InPath),
		zap.String("out", cfg.OutPath),
		zap.String("column", cfg.Column),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("concurrency", cfg.Concurrency))

	stats, err := eligibility.ProcessTable(ctx, in, out, cfg.TableOptions(), s, a.log)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close --out: %w", err)
	}

	a.log.Info("table processed",
		zap.Int("rows", stats.Rows),
		zap.Int("structured", stats.Structured),
		zap.Int("empty", stats.Empty),
		zap.Int("failed", stats.Failed),
		zap.Int("cached", stats.Cached),
		zap.Duration("elapsed", stats.Elapsed))

	if cfg.ReportPath != "" {
		report := runReport{
			RunID:        a.runID,
			Input:        cfg.InPath,
			Output:       cfg.OutPath,
			Column:       cfg.Column,
			OutputColumn: cfg.OutputColumn,
			Model:        model,
			Stats:        stats,
		}
		if err := fileutils.WriteJSONFileAtomic(cfg.ReportPath, report, cfg.Pretty); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func (a *app) runValidate(w io.Writer) error {
	cfg := a.cfg
	in, err := os.Open(cfg.InPath)
	if err != nil {
		return configError{fmt.Errorf("open --in: %w", err)}
	}
	defer in.Close()

	comma, _ := delimiter(cfg.InputDelimiter)
	issues, rows, err := eligibility.ValidateTable(in, eligibility.ValidateOptions{
		Column:       cfg.Column,
		OutputColumn: cfg.OutputColumn,
		Comma:        comma,
		MaxDrift:     cfg.MaxDrift,
	})
	if err != nil {
		return err
	}

	for _, is := range issues {
		if is.Drift > 0 {
			fmt.Fprintf(w, "row=%d reason=%q drift=%.3f\n", is.Row, is.Reason, is.Drift)
			continue
		}
		fmt.Fprintf(w, "row=%d reason=%q\n", is.Row, is.Reason)
	}
	fmt.Fprintf(w, "rows=%d issues=%d\n", rows, len(issues))

	if cfg.ReportPath != "" {
		report := runReport{
			RunID:        a.runID,
			Input:        cfg.InPath,
			Column:       cfg.Column,
			OutputColumn: cfg.OutputColumn,
			Stats:        eligibility.TableStats{Rows: rows, Failed: len(issues)},
			Issues:       issues,
		}
		if err := fileutils.WriteJSONFileAtomic(cfg.ReportPath, report, cfg.Pretty); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d of %d rows violate the numbering format", len(issues), rows)
	}
	return nil
}
