// yuimeta keeps the metadata argument of YUI.add() module registrations in
// step with the module definitions of YUI loader group configurations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/phobologic/yuimeta/internal/batch"
	"github.com/phobologic/yuimeta/internal/discover"
	"github.com/phobologic/yuimeta/internal/logging"
	"github.com/phobologic/yuimeta/internal/model"
	"github.com/phobologic/yuimeta/internal/report"
	"github.com/phobologic/yuimeta/internal/toon"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		if !reported(err) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// reported is true for failures whose details were already written as
// mismatch reports.
func reported(err error) bool {
	var f *batch.Failure
	return errors.As(err, &f) && len(f.Errs) == 0
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "yuimeta [files or directories...] --config <glob>",
		Short: "Sync YUI.add() metadata with loader group configs",
		Long: `yuimeta reads the module definitions of YUI loader group configs
(<root>.GlobalConfig.groups.<name> = {modules: {...}}) and makes the
metadata argument of each YUI.add() registration agree with them.

Modules with no metadata get the loader's block injected; metadata the
loader does not need is stripped. When both sides declare metadata and
they disagree, a diff is printed and the exit status is 1.

Directories are expanded to .js files. Files matching --config are read
as loader configs; files matching --ignore are left alone.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("yuimeta {{.Version}}\n")

	addFlags(root.PersistentFlags())

	root.AddCommand(newShowCmd(stdout, stderr), newIndexCmd(stdout, stderr))
	return root
}

func newShowCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show <module-file>...",
		Short: "Print module registrations as YAML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := setup(cmd, stderr)
			if err != nil {
				return err
			}
			files, err := discover.Expand(args)
			if err != nil {
				return err
			}
			recs, err := batch.Modules(ctx, files, batch.Options{Jobs: s.Jobs})
			if err != nil {
				return err
			}
			return report.Show(stdout, recs)
		},
	}
}

func newIndexCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "index [files or directories...] --config <glob>",
		Short: "Print the merged loader index",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := setup(cmd, stderr)
			if err != nil {
				return err
			}
			configs, _, err := selectFiles(s, args)
			if err != nil {
				return err
			}
			idx, err := batch.LoadIndex(ctx, configs, batch.Options{Jobs: s.Jobs})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, toon.Encode(idx))
			return err
		},
	}
}

// setup resolves settings and attaches a logger to the command context.
func setup(cmd *cobra.Command, stderr io.Writer) (*settings, context.Context, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(stderr, logging.Config{Level: s.LogLevel, Format: s.LogFormat, NoColor: s.NoColor})
	if s.File != "" {
		log.Debug().Str("file", s.File).Msg("loaded settings")
	}
	return s, logging.WithLogger(cmd.Context(), log), nil
}

// selectFiles expands args (default: the working directory) and splits the
// result into loader configs and module files.
func selectFiles(s *settings, args []string) (configs, modules []string, err error) {
	if len(s.Configs) == 0 {
		return nil, nil, errors.New("at least one --config pattern is required")
	}
	configPats, err := discover.Patterns(s.Configs)
	if err != nil {
		return nil, nil, err
	}
	ignorePats, err := discover.Patterns(s.Ignores)
	if err != nil {
		return nil, nil, err
	}

	if len(args) == 0 {
		args = []string{"."}
	}
	files, err := discover.Expand(args)
	if err != nil {
		return nil, nil, fmt.Errorf("discovering files: %w", err)
	}

	configs, modules = discover.Split(files, configPats, ignorePats)
	if len(configs) == 0 {
		return nil, nil, fmt.Errorf("no files match --config %v", s.Configs)
	}
	return configs, modules, nil
}

func runSync(cmd *cobra.Command, args []string, stderr io.Writer) error {
	s, ctx, err := setup(cmd, stderr)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx)

	configs, modules, err := selectFiles(s, args)
	if err != nil {
		return err
	}
	log.Debug().Int("configs", len(configs)).Int("modules", len(modules)).Msg("selected files")

	opts := batch.Options{Jobs: s.Jobs, MaxFileSize: s.MaxFileSize, DryRun: s.DryRun}
	idx, err := batch.LoadIndex(ctx, configs, opts)
	if err != nil {
		return err
	}

	outcomes, runErr := batch.Run(ctx, idx, modules, opts)
	logSummary(log, outcomes, s.DryRun)

	var f *batch.Failure
	if errors.As(runErr, &f) {
		p := report.NewPalette(stderr, s.NoColor)
		for _, mm := range f.Mismatches {
			if err := report.Mismatch(stderr, p, mm); err != nil {
				return err
			}
		}
	}
	return runErr
}

func logSummary(log *zerolog.Logger, outcomes []batch.Outcome, dryRun bool) {
	var sum batch.Summary
	for _, o := range outcomes {
		if o.File == "" {
			continue
		}
		sum.Add(o)
	}
	log.Info().
		Int("files", sum.Files).
		Int("modules", sum.Modules).
		Int(string(model.Inject), sum.Injected).
		Int(string(model.Strip), sum.Stripped).
		Int(string(model.Mismatch), sum.Mismatch).
		Int("skipped", sum.Skipped).
		Bool("dry_run", dryRun).
		Msg("done")
}
