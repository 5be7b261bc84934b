package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	for _, k := range []string{"STATEGRAPH_DB", "STATEGRAPH_AGENT", "STATEGRAPH_POLICY", "STATEGRAPH_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("HOME", "/home/tester")

	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.local/share/stategraph/state.db", e.DB)
	assert.Equal(t, "user", e.Agent)
	assert.Equal(t, "warn", e.LogLevel)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("STATEGRAPH_DB", "/tmp/x.db")
	t.Setenv("STATEGRAPH_AGENT", "claude")
	t.Setenv("STATEGRAPH_POLICY", "/etc/stategraph/policy.cue")
	t.Setenv("STATEGRAPH_LOG_LEVEL", "debug")

	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, Env{DB: "/tmp/x.db", Agent: "claude", Policy: "/etc/stategraph/policy.cue", LogLevel: "debug"}, e)
}
