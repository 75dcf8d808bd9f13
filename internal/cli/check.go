package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pipelinecheck/pkg/client"
	"github.com/matzehuels/pipelinecheck/pkg/dag"
	"github.com/matzehuels/pipelinecheck/pkg/errors"
	pio "github.com/matzehuels/pipelinecheck/pkg/io"
	"github.com/matzehuels/pipelinecheck/pkg/pipeline"
)

// errCyclic is returned by check --fail-on-cycle when the pipeline is not a DAG.
var errCyclic = stderrors.New("pipeline contains a cycle")

type checkOptions struct {
	server      string
	json        bool
	svg         string
	noCache     bool
	failOnCycle bool
}

// checkCommand creates the check command.
func (c *CLI) checkCommand() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Analyze a pipeline file",
		Long: `Analyze a pipeline JSON file and report its node count, edge count and
whether it is a DAG. Reads standard input when the file is "-" or omitted.`,
		Example: `  pipelinecheck check pipeline.json
  pipelinecheck check --json - < pipeline.json
  pipelinecheck check pipeline.json --svg pipeline.svg --fail-on-cycle
  pipelinecheck check --server http://localhost:8080 pipeline.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return c.runCheck(cmd, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "", "analyze on a remote pipelinecheck server at this URL")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&opts.svg, "svg", "", "also render the pipeline to this SVG file")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the local result cache")
	cmd.Flags().BoolVar(&opts.failOnCycle, "fail-on-cycle", false, "exit non-zero when the pipeline has a cycle")

	return cmd
}

func (c *CLI) runCheck(cmd *cobra.Command, path string, opts checkOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := pio.ImportJSON(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "read pipeline")
	}

	var res *pipeline.Result
	if opts.server != "" {
		res, err = c.checkRemote(ctx, opts.server, p)
	} else {
		res, err = c.checkLocal(ctx, opts.noCache, p)
	}
	if err != nil {
		return err
	}
	c.Logger.Debug("checked pipeline", "path", path, "hash", res.Hash, "cached", res.CacheHit)

	if opts.json {
		if err := pio.WriteJSON(out, res.Analysis); err != nil {
			return err
		}
	} else {
		printVerdict(out, res.Analysis.NumNodes, res.Analysis.NumEdges, res.Analysis.IsDAG, res.CacheHit)
	}

	if opts.svg != "" {
		prog := newProgress(c.Logger)
		svg, err := dag.RenderSVG(ctx, dag.ToDOT(p))
		if err != nil {
			return fmt.Errorf("render svg: %w", err)
		}
		if err := pio.WriteFile(opts.svg, svg); err != nil {
			return err
		}
		prog.done("Rendered " + opts.svg)
		if !opts.json {
			printFile(out, opts.svg)
		}
	}

	if opts.failOnCycle && !res.Analysis.IsDAG {
		return errCyclic
	}
	return nil
}

func (c *CLI) checkLocal(ctx context.Context, noCache bool, p dag.Pipeline) (*pipeline.Result, error) {
	runner, err := c.newRunner(noCache)
	if err != nil {
		return nil, err
	}
	defer runner.Close()
	return runner.Analyze(ctx, p)
}

// checkRemote analyzes p on a server. Remote results are never cached
// locally.
func (c *CLI) checkRemote(ctx context.Context, serverURL string, p dag.Pipeline) (*pipeline.Result, error) {
	start := time.Now()
	analysis, err := client.New(serverURL, nil).Parse(ctx, p)
	if err != nil {
		return nil, err
	}
	return &pipeline.Result{Analysis: analysis, Duration: time.Since(start)}, nil
}
