// Package commands implements the docmerge command line actions.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/history"
	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/Lllllllleong/docmerge/internal/services"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitFatal      = 1
	ExitIncomplete = 2
)

// runtimeEnv is what every action needs after the global flags are applied.
type runtimeEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func setup(c *cli.Context, overrides func(*cli.Context, *config.Config)) (*runtimeEnv, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}
	switch {
	case c.Bool("verbose"):
		cfg.Logging.Level = "debug"
	case c.Bool("quiet"):
		cfg.Logging.Level = "error"
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("log-file") {
		cfg.Logging.File = c.String("log-file")
	}
	if overrides != nil {
		overrides(c, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}

	logger, closer, err := NewLogger(cfg.Logging, c.App.ErrWriter)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}
	slog.SetDefault(logger)
	return &runtimeEnv{cfg: cfg, logger: logger, closer: closer}, nil
}

// applyMergeFlags copies the per-run flags of combine and check over cfg.
func applyMergeFlags(c *cli.Context, cfg *config.Config) {
	if c.Bool("no-ocr") {
		cfg.OCR.Enabled = false
	}
	if c.IsSet("lang") {
		cfg.OCR.Languages = c.StringSlice("lang")
	}
	if c.IsSet("workers") {
		cfg.Conversion.Workers = c.Int("workers")
		cfg.OCR.Workers = c.Int("workers")
	}
	if c.Bool("fail-fast") {
		cfg.Processing.FailFast = true
	}
	if c.Bool("overwrite") {
		cfg.Output.Overwrite = true
	}
	if c.Bool("recursive") {
		cfg.Catalog.Recursive = true
	}
	if c.IsSet("include") {
		cfg.Catalog.Include = c.StringSlice("include")
	}
	if c.IsSet("exclude") {
		cfg.Catalog.Exclude = c.StringSlice("exclude")
	}
	if c.IsSet("sort") {
		cfg.Catalog.Sort = c.String("sort")
	}
	if c.IsSet("order-file") {
		cfg.Catalog.CustomOrderFile = c.String("order-file")
		if !c.IsSet("sort") {
			cfg.Catalog.Sort = config.SortCustom
		}
	}
	if c.Bool("bookmarks") {
		cfg.Output.Bookmarks = true
	}
	if c.Bool("no-compress") {
		cfg.Output.Compression = false
	}
	if c.Bool("no-metadata") {
		cfg.Output.AddMetadata = false
	}
	if c.Bool("no-history") {
		cfg.History.Enabled = false
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CombineAction merges the documents of a directory into one PDF.
func CombineAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Error: combine takes exactly one source directory", ExitFatal)
	}
	dir := c.Args().First()
	env, err := setup(c, applyMergeFlags)
	if err != nil {
		return err
	}
	defer env.closer.Close()

	out := c.String("output")
	if out == "" {
		out = filepath.Join(dir, env.cfg.Output.DefaultName)
	}

	merger := services.NewMerger(env.cfg, services.WithLogger(env.logger))
	if missing := services.MissingRequired(merger.Dependencies()); len(missing) > 0 {
		for _, m := range missing {
			env.logger.Warn("Required tool is not installed.", "tool", m.Name, "installHint", m.InstallHint)
		}
	}

	result, runErr := merger.MergeDirectory(c.Context, dir, out)
	recordHistory(env, dir, out, result, runErr)

	if runErr != nil {
		if result != nil && !c.Bool("json") {
			fmt.Fprintln(c.App.ErrWriter, RenderResult(result))
		}
		return cli.Exit(fmt.Sprintf("Error: %v", runErr), ExitFatal)
	}

	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, result); err != nil {
			return cli.Exit(fmt.Sprintf("Error: failed to write result: %v", err), ExitFatal)
		}
	} else {
		fmt.Fprintln(c.App.Writer, RenderResult(result))
	}
	if result.FailedDocuments > 0 {
		return cli.Exit("", ExitIncomplete)
	}
	return nil
}

func recordHistory(env *runtimeEnv, source, out string, result *models.MergeResult, runErr error) {
	if !env.cfg.History.Enabled {
		return
	}
	db, err := history.Open(env.cfg.HistoryPath())
	if err != nil {
		env.logger.Warn("Failed to open run history.", "error", err)
		return
	}
	defer db.Close()

	if runErr == nil {
		err = db.RecordResult(source, result)
	} else {
		runID := uuid.NewString()
		if result != nil {
			runID = result.RunID
		}
		err = db.RecordFailure(runID, source, out, runErr)
	}
	if err != nil {
		env.logger.Warn("Failed to record run history.", "error", err)
	}
}

// VerifyAction checks a merged PDF against its source directory.
func VerifyAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("Error: verify takes a merged PDF and its source directory", ExitFatal)
	}
	env, err := setup(c, applyMergeFlags)
	if err != nil {
		return err
	}
	defer env.closer.Close()

	verifier := services.NewVerifier(services.CatalogOptionsFromConfig(env.cfg.Catalog), env.logger)
	report, err := verifier.Verify(c.Context, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}
	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, report); err != nil {
			return cli.Exit(fmt.Sprintf("Error: failed to write report: %v", err), ExitFatal)
		}
	} else {
		fmt.Fprintln(c.App.Writer, RenderVerification(report))
	}
	if report.State == models.VerificationUnreadable {
		return cli.Exit("", ExitFatal)
	}
	if report.State == models.VerificationNoProvenance || !report.IsValid {
		return cli.Exit("", ExitIncomplete)
	}
	return nil
}

// CheckAction inspects a directory without merging it.
func CheckAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Error: check takes exactly one source directory", ExitFatal)
	}
	env, err := setup(c, applyMergeFlags)
	if err != nil {
		return err
	}
	defer env.closer.Close()

	merger := services.NewMerger(env.cfg, services.WithLogger(env.logger))
	report, err := merger.CheckDirectory(c.Context, c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}
	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, report); err != nil {
			return cli.Exit(fmt.Sprintf("Error: failed to write report: %v", err), ExitFatal)
		}
		return nil
	}
	fmt.Fprintln(c.App.Writer, RenderCheck(report))
	return nil
}

// DepsAction reports which external tools are installed.
func DepsAction(c *cli.Context) error {
	env, err := setup(c, applyMergeFlags)
	if err != nil {
		return err
	}
	defer env.closer.Close()

	statuses := services.NewMerger(env.cfg, services.WithLogger(env.logger)).Dependencies()
	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, statuses); err != nil {
			return cli.Exit(fmt.Sprintf("Error: failed to write report: %v", err), ExitFatal)
		}
	} else {
		fmt.Fprintln(c.App.Writer, RenderDependencies(statuses))
	}
	if len(services.MissingRequired(statuses)) > 0 {
		return cli.Exit("", ExitFatal)
	}
	return nil
}

// HistoryAction lists recorded runs, shows one run, or prunes old ones.
func HistoryAction(c *cli.Context) error {
	env, err := setup(c, nil)
	if err != nil {
		return err
	}
	defer env.closer.Close()

	db, err := history.Open(env.cfg.HistoryPath())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}
	defer db.Close()

	if c.IsSet("prune") {
		n, err := db.Prune(time.Now().Add(-c.Duration("prune")))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
		}
		fmt.Fprintf(c.App.Writer, "Pruned %d runs\n", n)
		return nil
	}

	if id := c.Args().First(); id != "" {
		run, err := db.GetRun(id)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
		}
		docs, err := db.GetRunDocuments(id)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
		}
		if c.Bool("json") {
			return writeJSON(c.App.Writer, struct {
				Run       *history.Run          `json:"run"`
				Documents []history.RunDocument `json:"documents"`
			}{run, docs})
		}
		fmt.Fprintln(c.App.Writer, RenderRun(run, docs))
		return nil
	}

	runs, err := db.ListRuns(c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, runs)
	}
	fmt.Fprintln(c.App.Writer, RenderRuns(runs))
	return nil
}

// InitConfigAction writes the default configuration file.
func InitConfigAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = config.FileName
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return cli.Exit(fmt.Sprintf("Error: %s already exists, use --force to replace it", path), ExitFatal)
	}
	if err := config.Default().Save(path); err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFatal)
	}
	fmt.Fprintf(c.App.Writer, "Wrote default configuration to %s\n", path)
	return nil
}
