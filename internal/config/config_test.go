package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DEVASSIST_WORKSPACE", "MCP_WORKSPACE", "DEVASSIST_PROVIDER", "DEVASSIST_MODEL",
		"DEVASSIST_API_KEY", "OPENAI_API_KEY", "GROQ_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "DEVASSIST_MAX_STEPS",
		"DEVASSIST_PARALLEL_TOOLS", "DEVASSIST_RPS", "DEVASSIST_TRACE_DIR", "DEVASSIST_CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadLayering(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
provider = "groq"
max_steps = 5
parallel_tools = true
cors_origins = ["https://from-file.example"]

[trace]
dir = "traces"
`), 0o644))

	t.Setenv("DEVASSIST_MAX_STEPS", "7")
	t.Setenv("GROQ_API_KEY", "gsk")
	t.Setenv("MCP_WORKSPACE", "/srv/code")
	t.Setenv("DEVASSIST_CORS_ORIGINS", "https://ui.example, ,http://localhost:3000")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "groq", cfg.Provider)
	assert.Equal(t, 7, cfg.MaxSteps)
	assert.True(t, cfg.ParallelTools)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, []string{"https://ui.example", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, "/srv/code", cfg.WorkspaceRoot)
	assert.Equal(t, "traces", cfg.Trace.Dir)
	assert.Equal(t, 300, cfg.MaxFilesScanned)

	cfg.WorkspaceRoot = dir
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "gsk", cfg.APIKey)
}

func TestFinalizeKeyFollowsProvider(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GROQ_API_KEY", "gsk-groq")

	cfg := Default()
	cfg.WorkspaceRoot = dir
	cfg.Provider = "groq"
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "gsk-groq", cfg.APIKey)

	cfg = Default()
	cfg.WorkspaceRoot = dir
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "sk-openai", cfg.APIKey)

	cfg = Default()
	cfg.WorkspaceRoot = dir
	cfg.Provider = "groq"
	cfg.APIKey = "explicit"
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "explicit", cfg.APIKey)

	cfg = Default()
	cfg.WorkspaceRoot = dir
	cfg.Provider = "fake"
	require.NoError(t, cfg.Finalize())
	assert.Empty(t, cfg.APIKey)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	_, err := Load("missing.toml")
	assert.Error(t, err)

	t.Setenv("DEVASSIST_MAX_STEPS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "DEVASSIST_MAX_STEPS")
}

func TestFinalize(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.WorkspaceRoot = dir
	require.NoError(t, cfg.Finalize())
	assert.True(t, filepath.IsAbs(cfg.WorkspaceRoot))

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.WorkspaceRoot = file
	assert.Error(t, cfg.Finalize())

	cfg.WorkspaceRoot = dir
	cfg.MaxSteps = 0
	assert.Error(t, cfg.Finalize())
}
