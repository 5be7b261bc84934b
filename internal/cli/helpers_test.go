package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/store"
	"github.com/roach88/stategraph/internal/testutil"
)

func init() {
	color.NoColor = true
}

// cliEnv runs commands against one database with a shared deterministic
// clock and id sequence, the way separate invocations share a file.
type cliEnv struct {
	db    string
	clock *testutil.StepClock
	ids   *testutil.SequentialIDs
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("STATEGRAPH_AGENT", "user")
	t.Setenv("STATEGRAPH_POLICY", "")
	t.Setenv("STATEGRAPH_LOG_LEVEL", "error")
	return &cliEnv{
		db:    filepath.Join(t.TempDir(), "state.db"),
		clock: testutil.NewStepClock(testutil.Epoch, time.Second),
		ids:   testutil.NewSequentialIDs("id"),
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func (e *cliEnv) run(t *testing.T, args ...string) cliResult {
	t.Helper()
	opts := &RootOptions{storeOptions: []store.Option{
		store.WithClock(e.clock.Now),
		store.WithIDGenerator(e.ids.Next),
	}}
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

// mustRun fails the test when the command fails.
func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	res := e.run(t, args...)
	require.NoError(t, res.err, "stategraph %v\nstderr: %s", args, res.stderr)
	return res.stdout
}

// runJSON runs with --format json and decodes the data field into dest.
func (e *cliEnv) runJSON(t *testing.T, dest any, args ...string) {
	t.Helper()
	out := e.mustRun(t, append([]string{"--format", "json"}, args...)...)
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	if dest != nil {
		require.NoError(t, json.Unmarshal(resp.Data, dest), string(resp.Data))
	}
}

// errorResponse runs with --format json, expects failure and returns the
// error envelope with the exit code.
func (e *cliEnv) errorResponse(t *testing.T, args ...string) (CLIError, int) {
	t.Helper()
	res := e.run(t, append([]string{"--format", "json"}, args...)...)
	require.Error(t, res.err, "stategraph %v should fail", args)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), res.stdout)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return *resp.Error, GetExitCode(res.err)
}

func writePolicy(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func assertGolden(t *testing.T, name string, got string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(got))
}
