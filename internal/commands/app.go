package commands

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

func catalogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "include documents in subdirectories"},
		&cli.StringSliceFlag{Name: "include", Usage: "only documents matching `PATTERN` (repeatable)"},
		&cli.StringSliceFlag{Name: "exclude", Usage: "skip documents matching `PATTERN` (repeatable)"},
		&cli.StringFlag{Name: "sort", Usage: "document order: name, date, size or custom"},
		&cli.StringFlag{Name: "order-file", Usage: "`FILE` listing document names in merge order"},
	}
}

func processingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "no-ocr", Usage: "never run OCR on image-only PDFs"},
		&cli.StringSliceFlag{Name: "lang", Aliases: []string{"l"}, Usage: "OCR `LANGUAGE` (repeatable)"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "parallel conversions and OCR jobs"},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "print machine readable JSON"}
}

// NewApp builds the docmerge command line application.
func NewApp() *cli.App {
	combineFlags := append([]cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "merged `PDF` (default: <dir>/combined.pdf)"},
		&cli.BoolFlag{Name: "overwrite", Aliases: []string{"f"}, Usage: "replace an existing output file"},
		&cli.BoolFlag{Name: "fail-fast", Usage: "stop at the first failing document"},
		&cli.BoolFlag{Name: "bookmarks", Usage: "add a bookmark for every source document"},
		&cli.BoolFlag{Name: "no-compress", Usage: "skip output optimization"},
		&cli.BoolFlag{Name: "no-metadata", Usage: "do not record the source list in the output"},
		&cli.BoolFlag{Name: "no-history", Usage: "do not record the run in the history ledger"},
		jsonFlag(),
	}, append(catalogFlags(), processingFlags()...)...)

	return &cli.App{
		Name:    "docmerge",
		Usage:   "merge PDF, DOC and DOCX documents into one searchable PDF",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration `FILE`", EnvVars: []string{"DOCMERGE_CONFIG"}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "debug logging"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
			&cli.StringFlag{Name: "log-format", Usage: "log format: text or json"},
			&cli.StringFlag{Name: "log-file", Usage: "append logs to `FILE`"},
		},
		Commands: []*cli.Command{
			{
				Name:      "combine",
				Aliases:   []string{"merge"},
				Usage:     "merge every supported document of a directory",
				ArgsUsage: "DIR",
				Flags:     combineFlags,
				Action:    CombineAction,
			},
			{
				Name:      "verify",
				Usage:     "check a merged PDF against its source directory",
				ArgsUsage: "PDF DIR",
				Flags:     append(catalogFlags(), jsonFlag()),
				Action:    VerifyAction,
			},
			{
				Name:      "check",
				Usage:     "show what combine would do without writing anything",
				ArgsUsage: "DIR",
				Flags:     append(append(catalogFlags(), processingFlags()...), jsonFlag()),
				Action:    CheckAction,
			},
			{
				Name:   "deps",
				Usage:  "report the external tools docmerge uses",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "no-ocr", Usage: "do not require the OCR tools"}, jsonFlag()},
				Action: DepsAction,
			},
			{
				Name:      "history",
				Usage:     "list recorded merge runs or show one of them",
				ArgsUsage: "[RUN_ID]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of runs to list"},
					&cli.DurationFlag{Name: "prune", Usage: "delete runs older than `AGE` (e.g. 720h)", Value: 30 * 24 * time.Hour},
					jsonFlag(),
				},
				Action: HistoryAction,
			},
			{
				Name:      "init-config",
				Usage:     "write the default configuration file",
				ArgsUsage: "[PATH]",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "replace an existing file"}},
				Action:    InitConfigAction,
			},
		},
	}
}
