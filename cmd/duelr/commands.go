package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/loykin/duelr/internal/artifact"
	"github.com/loykin/duelr/internal/manager"
	"github.com/loykin/duelr/pkg/client"
	"github.com/spf13/cobra"
)

var errNotRunning = errors.New("engine not running")

func createProbeCommand() *cobra.Command {
	f := &ProbeFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether engines answer their liveness endpoint",
		Long: `Send one liveness request to each engine URL and print the outcome.
Exits non-zero when any engine is not running.

Examples:
  duelr probe --url=http://localhost:8080 --url=http://localhost:8082`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return probe(cmd.Context(), f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&f.URLs, "url", []string{"http://localhost:8080", "http://localhost:8082"}, "engine base URL (repeatable)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func probe(ctx context.Context, f *ProbeFlags, out io.Writer) error {
	results := manager.Probe(ctx, f.URLs, f.Timeout)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "URL\tRUNNING")
	down := 0
	for _, r := range results {
		_, _ = fmt.Fprintf(tw, "%s\t%t\n", r.URL, r.Running)
		if !r.Running {
			down++
		}
	}
	_ = tw.Flush()
	if down > 0 {
		return fmt.Errorf("%w: %d of %d", errNotRunning, down, len(results))
	}
	return nil
}

func createDiscoverCommand() *cobra.Command {
	f := &DiscoverFlags{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List engine artifacts in a directory, newest first",
		Long: `List the artifacts matching the pattern, highest version first. The first
line is the artifact run would pick.

Examples:
  duelr discover --dir=target
  duelr discover --dir=dist --pattern='^engine-v(\d+\.\d+\.\d+)\.jar$'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return discover(f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.Dir, "dir", "target", "directory to search")
	cmd.Flags().StringVar(&f.Pattern, "pattern", artifact.DefaultPattern, "artifact file pattern; the first group is the version")
	return cmd
}

func discover(f *DiscoverFlags, out io.Writer) error {
	cands, err := artifact.Find(f.Dir, f.Pattern)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		return fmt.Errorf("%w in %s", artifact.ErrNotFound, f.Dir)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tIDENTITY\tPATH")
	for _, c := range cands {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Version, artifact.Identity(c.Path), c.Path)
	}
	return tw.Flush()
}

func createStatusCommand() *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the progress of a running series",
		Long: `Query the status API of a running "duelr run --server" and print it as JSON.

Examples:
  duelr status
  duelr status --api-url=http://remote:8090 --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return status(cmd.Context(), f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "http://127.0.0.1:8090", "status API base URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.Wait, "wait", false, "poll until the series ends")
	cmd.Flags().DurationVar(&f.Interval, "interval", time.Second, "poll interval with --wait")
	return cmd
}

func status(ctx context.Context, f *StatusFlags, out io.Writer) error {
	c := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
	if !c.IsReachable(ctx) {
		return fmt.Errorf("status api not reachable at %s - start a series with 'duelr run --server'", f.APIUrl)
	}
	var (
		st  client.StatusResponse
		err error
	)
	if f.Wait {
		st, err = c.Wait(ctx, f.Interval)
	} else {
		st, err = c.Status(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(out, st)
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the duelr version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "duelr", version)
		},
	}
}
