package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/app"
	"github.com/JakeFAU/chunkgen/internal/config"
	"github.com/JakeFAU/chunkgen/internal/report"
)

type fakeApp struct {
	cfg      config.Config
	requests []app.GenerateRequest
	err      error
	closed   bool
}

func (f *fakeApp) Generate(_ context.Context, req app.GenerateRequest, out report.Sink) error {
	f.requests = append(f.requests, req)
	if req.World == "missing" {
		out.Deliver(app.UnknownWorldMessage(req.World))
		return errors.New("unknown world")
	}
	out.Deliver(app.StartMessage)
	if f.err != nil {
		out.Deliver(f.err.Error())
		return f.err
	}
	out.Deliver("Generation completed.")
	return nil
}

func (f *fakeApp) Serve(context.Context) error { return nil }

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// withFakeApp swaps the application factory for the duration of a test.
func withFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	viper.Reset()
	prev := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() {
		newApp = prev
		viper.Reset()
	})
	t.Chdir(t.TempDir())
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	out, err := execute("generate", "--threshold", "10", "world", "-2", "0", "5", "7", "4")
	require.NoError(t, err)
	require.Equal(t, "Generating...\nGeneration completed.\n", out)
	require.Equal(t, []app.GenerateRequest{{World: "world", X1: -2, Z1: 0, X2: 5, Z2: 7, Concurrency: 4}}, fake.requests)
	require.InDelta(t, 10.0, fake.cfg.Report.Threshold, 1e-12)
	require.True(t, fake.closed)
}

func TestGenerateCommandDefaultsConcurrency(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := execute("generate", "world", "0", "0", "1", "1")
	require.NoError(t, err)
	require.Zero(t, fake.requests[0].Concurrency)
	require.Equal(t, 2, fake.cfg.Scheduler.Concurrency)
	require.InDelta(t, 0.01, fake.cfg.Report.Threshold, 1e-12)
}

func TestGenerateCommandUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"generate", "world", "0", "0", "1"},
		{"generate", "world", "0", "zero", "1", "1"},
		{"generate", "world", "0", "0", "1", "1", "2", "3"},
	} {
		fake := &fakeApp{}
		withFakeApp(t, fake)

		_, err := execute(args...)
		require.Error(t, err, args)
		require.Empty(t, fake.requests)
	}
}

func TestGenerateCommandFailureKeepsExitStatus(t *testing.T) {
	fake := &fakeApp{err: errors.New("backend unavailable")}
	withFakeApp(t, fake)

	out, err := execute("generate", "world", "0", "0", "1", "1")
	require.NoError(t, err)
	require.Equal(t, "Generating...\nbackend unavailable\n", out)
}

func TestGenerateCommandUnknownWorldSkipsStartLine(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	out, err := execute("generate", "missing", "0", "0", "1", "1")
	require.NoError(t, err)
	require.Equal(t, "No world with the folder name \"missing\" found.\n", out)
}

func TestToRequest(t *testing.T) {
	t.Parallel()

	req, err := toRequest([]string{"world_nether", "1", "2", "3", "4"})
	require.NoError(t, err)
	require.Equal(t, app.GenerateRequest{World: "world_nether", X1: 1, Z1: 2, X2: 3, Z2: 4}, req)

	_, err = toRequest([]string{"world", "1.5", "2", "3", "4"})
	require.ErrorContains(t, err, `"1.5" is not an integer`)
}
