package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/app"
	"github.com/JakeFAU/chunkgen/internal/report"
)

// newGenerateCmd creates the 'generate' subcommand.
func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [flags] <world> <x1> <z1> <x2> <z2> [concurrency]",
		Short: "Populates every cell in a rectangular range",
		Long: `Populates every cell from (x1, z1) to (x2, z2) inclusive in the named world.
At most [concurrency] cells are outstanding at once (default from
scheduler.concurrency). Cells that fail are retried once after the first pass.`,
		Args: parseGenerateArgs,
		RunE: runGenerateCommand,
	}

	flags := cmd.Flags()
	// Flags must precede <world> so negative coordinates parse as arguments.
	flags.SetInterspersed(false)
	flags.Float64("threshold", 0.01, "percentage points of progress between messages (0 reports every cell)")
	flags.String("listen", "", "serve /healthz, /metrics and /v1/runs on this address while generating")
	flags.Float64("fail-rate", 0, "probability that a simulated cell population fails")
	_ = viper.BindPFlag("report.threshold", flags.Lookup("threshold"))
	_ = viper.BindPFlag("server.listen", flags.Lookup("listen"))
	_ = viper.BindPFlag("worlds.fail_rate", flags.Lookup("fail-rate"))
	return cmd
}

// parseGenerateArgs validates positional arguments so that malformed
// coordinates are a usage error rather than a generation failure.
func parseGenerateArgs(_ *cobra.Command, args []string) error {
	_, err := toRequest(args)
	return err
}

func toRequest(args []string) (app.GenerateRequest, error) {
	if len(args) < 5 || len(args) > 6 {
		return app.GenerateRequest{}, fmt.Errorf("expected <world> <x1> <z1> <x2> <z2> [concurrency], got %d argument(s)", len(args))
	}
	nums := make([]int, 0, 5)
	for _, raw := range args[1:] {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return app.GenerateRequest{}, fmt.Errorf("%q is not an integer", raw)
		}
		nums = append(nums, n)
	}
	req := app.GenerateRequest{
		World: args[0],
		X1:    nums[0],
		Z1:    nums[1],
		X2:    nums[2],
		Z2:    nums[3],
	}
	if len(nums) == 5 {
		req.Concurrency = nums[4]
	}
	return req, nil
}

func runGenerateCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	req, err := toRequest(args)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- appInstance.Serve(ctx)
	}()

	out := report.NewWriterSink(cmd.OutOrStdout())
	if err := appInstance.Generate(ctx, req, out); err != nil {
		// The failure was already delivered; the exit status only reflects
		// argument parsing.
		logger.Warn("generation did not complete", zap.String("world", req.World), zap.Error(err))
	}

	cancel()
	if err := <-serveErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("status server stopped with error", zap.Error(err))
	}
	return nil
}
