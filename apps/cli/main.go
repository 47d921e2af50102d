package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/acm19/exifsort/internal/logger"
	"github.com/acm19/exifsort/internal/sorter"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// version is set at build time via -ldflags.
var version = "dev"

// errFailures makes the process exit non-zero after the report was printed.
var errFailures = errors.New("some files could not be sorted")

var config = viper.New()

var rootCmd = &cobra.Command{
	Use:   "exifsort",
	Short: "Sort photos into date-based directories",
	Long: `Exifsort moves images and videos into YYYY-MM-DD directories.

The date comes from the embedded EXIF capture time when present, otherwise from
the file's creation time, otherwise from its modification time. Files are never
overwritten: name clashes get a _1, _2, ... suffix.

Every flag can also be set through the environment, e.g. EXIFSORT_DRY_RUN=true.`,
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSort,
}

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Scan, review and sort files step by step",
	Long:  `Starts a line-based session: scan a directory, list the records and move all or selected files.`,
	Args:  cobra.NoArgs,
	RunE:  runInteractive,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.AddFlagSet(newFlagSet())
	if err := bindConfig(config, flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(interactiveCmd)
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("exifsort", pflag.ContinueOnError)
	flags.StringP("source-dir", "s", ".", "Directory to scan")
	flags.StringP("target-dir", "t", "./sorted", "Directory to sort files into")
	flags.Bool("include-target", false, "Also scan the target directory when it lies inside the source")
	flags.BoolP("dry-run", "n", false, "Print the planned moves without touching any file")
	flags.Bool("no-subdirectory", false, "Put files directly into the target directory")
	flags.Bool("image-number", false, "Rename files after their EXIF ImageNumber when present")
	flags.Bool("exiftool", false, "Fall back to exiftool for formats the native parser cannot read")
	flags.Bool("verbose", false, "Enable debug logging")
	return flags
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailures) {
			logger.Error("exifsort failed", "error", err)
		}
		os.Exit(1)
	}
}

// bindConfig binds flags to v, with EXIFSORT_* environment variables as fallback.
func bindConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	v.SetEnvPrefix("EXIFSORT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(flags)
}

func optionsFromConfig(v *viper.Viper) sorter.Options {
	opts := sorter.DefaultOptions()
	opts.SourceDir = v.GetString("source-dir")
	opts.TargetDir = v.GetString("target-dir")
	opts.IncludeTarget = v.GetBool("include-target")
	opts.DryRun = v.GetBool("dry-run")
	opts.UseSubdirectory = !v.GetBool("no-subdirectory")
	opts.UseImageNumber = v.GetBool("image-number")
	opts.UseExiftool = v.GetBool("exiftool")
	return opts
}

func runSort(cmd *cobra.Command, args []string) error {
	// Logs go to stderr so the report on stdout stays readable.
	logger.Configure(os.Stderr, config.GetBool("verbose"))
	opts := optionsFromConfig(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progress := make(chan sorter.ProgressEvent, 100)
	opts.ProgressChan = progress
	rendered := make(chan struct{})
	go func() {
		renderProgress(progress, os.Stderr)
		close(rendered)
	}()

	report, err := sorter.NewScanPipeline().Run(ctx, opts)
	close(progress)
	<-rendered

	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return err
	}
	if report.HasFailures() {
		return errFailures
	}
	return nil
}

// renderProgress draws one bar per stage until events is closed.
func renderProgress(events <-chan sorter.ProgressEvent, w io.Writer) {
	var bar *progressbar.ProgressBar
	var stage sorter.Stage
	for event := range events {
		if bar == nil || event.Stage != stage {
			if bar != nil {
				bar.Finish()
			}
			stage = event.Stage
			total := event.Total
			if total == 0 {
				total = -1
			}
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(string(stage)),
				progressbar.OptionSetWidth(20),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(event.Current)
	}
	if bar != nil {
		bar.Finish()
	}
}

func printReport(w io.Writer, report *sorter.BatchReport) {
	if report.DryRun {
		color.New(color.Bold).Fprintf(w, "Dry run, %d planned moves:\n", len(report.Planned))
		for _, plan := range report.Planned {
			fmt.Fprintf(w, "  %s -> %s\n", plan.Source, color.CyanString(plan.Target))
		}
	}

	for _, path := range report.Skipped {
		color.New(color.FgYellow).Fprintf(w, "skipped %s\n", path)
	}
	for _, failed := range report.Failed {
		color.New(color.FgRed).Fprintf(w, "failed  %s: %s\n", failed.Path, failed.Reason)
	}

	summary := color.New(color.FgGreen, color.Bold)
	if report.HasFailures() {
		summary = color.New(color.FgRed, color.Bold)
	}
	summary.Fprintf(w, "moved: %d, failed: %d, skipped: %d\n", report.Moved, len(report.Failed), len(report.Skipped))
}
