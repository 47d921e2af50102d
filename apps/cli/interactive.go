package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/acm19/exifsort/internal/logger"
	"github.com/acm19/exifsort/internal/sorter"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const interactiveHelp = `Commands:
  s [DIR]    scan DIR (default: the source directory)
  l          list the scanned records
  p          move every pending record
  P 1,3-5    move the listed records
  d          toggle dry-run mode
  h          show this help
  q          quit
`

func runInteractive(cmd *cobra.Command, args []string) error {
	logger.Configure(os.Stderr, config.GetBool("verbose"))
	opts := optionsFromConfig(config)

	v := newView(sorter.NewSession(opts), opts, cmd.InOrStdin(), cmd.OutOrStdout())
	return v.loop(context.Background())
}

// view renders session snapshots and turns input lines into session calls.
type view struct {
	session   *sorter.Session
	sourceDir string
	dryRun    bool
	in        *bufio.Scanner
	out       io.Writer
}

func newView(session *sorter.Session, opts sorter.Options, in io.Reader, out io.Writer) *view {
	return &view{
		session:   session,
		sourceDir: opts.SourceDir,
		dryRun:    opts.DryRun,
		in:        bufio.NewScanner(in),
		out:       out,
	}
}

func (v *view) loop(ctx context.Context) error {
	fmt.Fprint(v.out, interactiveHelp)
	for {
		fmt.Fprint(v.out, "> ")
		if !v.in.Scan() {
			fmt.Fprintln(v.out)
			return v.in.Err()
		}

		quit, err := v.handle(ctx, v.in.Text())
		if err != nil {
			color.New(color.FgRed).Fprintf(v.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// handle runs one command line. Ctrl-C cancels the running command only.
func (v *view) handle(parent context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	switch cmd {
	case "":
		return false, nil
	case "q":
		return true, nil
	case "h", "?":
		fmt.Fprint(v.out, interactiveHelp)
		return false, nil
	case "s":
		dir := v.sourceDir
		if arg != "" {
			dir = arg
		}
		return false, v.scan(ctx, dir)
	case "l":
		v.list()
		return false, nil
	case "d":
		v.dryRun = !v.dryRun
		v.session.SetDryRun(v.dryRun)
		fmt.Fprintf(v.out, "dry-run: %v\n", v.dryRun)
		return false, nil
	case "p":
		return false, v.process(ctx, sorter.All())
	case "P":
		indices, err := parseSelection(arg, len(v.session.Snapshot().Records))
		if err != nil {
			return false, err
		}
		return false, v.process(ctx, sorter.Selected(indices...))
	default:
		return false, fmt.Errorf("unknown command %q, type h for help", cmd)
	}
}

func (v *view) scan(ctx context.Context, dir string) error {
	report, err := v.session.Scan(ctx, dir)
	if err != nil {
		return err
	}
	snap := v.session.Snapshot()
	fmt.Fprintf(v.out, "scanned %s: %d files, %d unreadable, %d skipped\n",
		snap.SourceDir, len(snap.Records), len(report.Failed), len(report.Skipped))
	return nil
}

func (v *view) process(ctx context.Context, sel sorter.Selection) error {
	report, err := v.session.Process(ctx, sel)
	if report != nil {
		printReport(v.out, report)
	}
	return err
}

func (v *view) list() {
	snap := v.session.Snapshot()
	if len(snap.Records) == 0 {
		fmt.Fprintln(v.out, "nothing scanned yet")
		return
	}

	fmt.Fprintf(v.out, "batch %s (%s)\n", snap.BatchID, snap.Stage)
	for i, record := range snap.Records {
		date := "-"
		if record.ResolvedDate != nil {
			date = record.ResolvedDate.String()
		}
		name, err := filepath.Rel(snap.SourceDir, record.SourcePath)
		if err != nil {
			name = record.SourcePath
		}

		line := fmt.Sprintf("%4d  %s  %-10s  %-8s  %s", i+1, statusLabel(record.Status), date, record.DateSource, name)
		switch {
		case record.Failed():
			line += ": " + record.Err.Error()
		case record.TargetPath() != "":
			line += " -> " + record.TargetPath()
		}
		fmt.Fprintln(v.out, line)
	}
}

func statusLabel(status sorter.Status) string {
	label := fmt.Sprintf("%-8s", status)
	switch status {
	case sorter.StatusMoved:
		return color.GreenString(label)
	case sorter.StatusCollided:
		return color.YellowString(label)
	case sorter.StatusFailed:
		return color.RedString(label)
	default:
		return label
	}
}

// parseSelection turns a 1-based list such as "1,3-5" into sorted 0-based
// indices. Every index must lie in 1..n.
func parseSelection(s string, n int) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty selection")
	}

	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi := part, part
		if from, to, ok := strings.Cut(part, "-"); ok {
			lo, hi = strings.TrimSpace(from), strings.TrimSpace(to)
		}

		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		last, err := strconv.Atoi(hi)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		if first > last {
			return nil, fmt.Errorf("invalid range %q", part)
		}
		if first < 1 || last > n {
			return nil, fmt.Errorf("selection %q out of range 1-%d", part, n)
		}
		for i := first; i <= last; i++ {
			seen[i-1] = true
		}
	}

	indices := make([]int, 0, len(seen))
	for i := range seen {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices, nil
}
