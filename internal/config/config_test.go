package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentctl/internal/capability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stdioServer(name string) ServerDefinition {
	return ServerDefinition{Name: name, Transport: TransportStdio, Command: "server-bin"}
}

func TestValidate_ServerDefinitions(t *testing.T) {
	tests := []struct {
		name    string
		def     ServerDefinition
		wantErr error
	}{
		{
			name: "valid stdio",
			def:  stdioServer("github"),
		},
		{
			name:    "empty name",
			def:     ServerDefinition{Transport: TransportStdio, Command: "x"},
			wantErr: capability.ErrInvalidConfiguration,
		},
		{
			name:    "stdio without command",
			def:     ServerDefinition{Name: "github", Transport: TransportStdio},
			wantErr: capability.ErrInvalidConfiguration,
		},
		{
			name: "valid http",
			def:  ServerDefinition{Name: "remote", Transport: TransportHTTP, URL: "http://localhost:9000/mcp"},
		},
		{
			name:    "http without url",
			def:     ServerDefinition{Name: "remote", Transport: TransportHTTP},
			wantErr: capability.ErrInvalidConfiguration,
		},
		{
			name:    "sse without url",
			def:     ServerDefinition{Name: "remote", Transport: TransportSSE},
			wantErr: capability.ErrInvalidConfiguration,
		},
		{
			name:    "unknown transport",
			def:     ServerDefinition{Name: "remote", Transport: "carrier-pigeon"},
			wantErr: capability.ErrInvalidConfiguration,
		},
		{
			name: "unknown connection mode",
			def: func() ServerDefinition {
				d := stdioServer("github")
				d.ConnectionMode = "optimistic"
				return d
			}(),
			wantErr: capability.ErrInvalidConfiguration,
		},
		{
			name: "negative timeout",
			def: func() ServerDefinition {
				d := stdioServer("github")
				d.Timeout = -time.Second
				return d
			}(),
			wantErr: capability.ErrInvalidConfiguration,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestValidate_DuplicateNamesAreExplicitErrors(t *testing.T) {
	cfg := Config{Servers: []ServerDefinition{stdioServer("github"), stdioServer("github")}}
	assert.ErrorIs(t, cfg.Validate(), capability.ErrDuplicateIdentifier)

	cfg = Config{Prompts: []PromptDefinition{
		{Name: "review", Template: "t"},
		{Name: "review", Template: "t"},
	}}
	assert.ErrorIs(t, cfg.Validate(), capability.ErrDuplicateIdentifier)
}

func TestValidate_PromptDefinitions(t *testing.T) {
	cfg := Config{Prompts: []PromptDefinition{{Template: "t"}}}
	assert.ErrorIs(t, cfg.Validate(), capability.ErrInvalidConfiguration)

	cfg = Config{Prompts: []PromptDefinition{{Name: "review"}}}
	assert.ErrorIs(t, cfg.Validate(), capability.ErrInvalidConfiguration)
}

func TestEffectiveTimeout(t *testing.T) {
	def := stdioServer("github")
	assert.Equal(t, DefaultTimeout, def.EffectiveTimeout())

	def.Timeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, def.EffectiveTimeout())
}

func TestStrict(t *testing.T) {
	def := stdioServer("github")
	assert.False(t, def.Strict(), "lenient is the default")

	def.ConnectionMode = ConnectionModeStrict
	assert.True(t, def.Strict())

	def.ConnectionMode = ConnectionModeLenient
	assert.False(t, def.Strict())
}

func TestMergeConfigs_ServersReplaceByName(t *testing.T) {
	base := Config{Servers: []ServerDefinition{stdioServer("github"), stdioServer("jira")}}
	overlay := Config{Servers: []ServerDefinition{
		{Name: "github", Transport: TransportHTTP, URL: "http://localhost:9000/mcp"},
		stdioServer("slack"),
	}}

	merged := mergeConfigs(base, overlay)
	require.Len(t, merged.Servers, 3)

	// Replaced in place, order preserved.
	assert.Equal(t, "github", merged.Servers[0].Name)
	assert.Equal(t, TransportHTTP, merged.Servers[0].Transport)
	assert.Equal(t, "jira", merged.Servers[1].Name)
	assert.Equal(t, "slack", merged.Servers[2].Name)
}

func TestMergeConfigs_ScalarsOverrideWhenSet(t *testing.T) {
	base := GetDefaultConfig()
	merged := mergeConfigs(base, Config{})
	assert.Equal(t, base.Gateway, merged.Gateway)

	merged = mergeConfigs(base, Config{
		PromptsDir: "/tmp/prompts",
		Gateway:    GatewayConfig{Port: 9999},
	})
	assert.Equal(t, "/tmp/prompts", merged.PromptsDir)
	assert.Equal(t, 9999, merged.Gateway.Port)
	assert.Equal(t, base.Gateway.Host, merged.Gateway.Host, "unset overlay fields keep base values")
}

func TestLoadConfig_LayersUserAndProject(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(home, userConfigDir), 0o755))
	userYAML := `
servers:
  - name: github
    transport: stdio
    command: github-server
  - name: jira
    transport: stdio
    command: jira-server
`
	require.NoError(t, os.WriteFile(filepath.Join(home, userConfigDir, configFileName), []byte(userYAML), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(project, projectConfigDir), 0o755))
	projectYAML := `
servers:
  - name: github
    transport: http
    url: http://localhost:9000/mcp
gateway:
  port: 9100
`
	require.NoError(t, os.WriteFile(filepath.Join(project, projectConfigDir, configFileName), []byte(projectYAML), 0o644))

	origHome, origWd := osUserHomeDir, osGetwd
	osUserHomeDir = func() (string, error) { return home, nil }
	osGetwd = func() (string, error) { return project, nil }
	defer func() { osUserHomeDir, osGetwd = origHome, origWd }()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, TransportHTTP, cfg.Servers[0].Transport, "project overrides user per server")
	assert.Equal(t, "jira", cfg.Servers[1].Name, "non-overridden user servers survive")
	assert.Equal(t, 9100, cfg.Gateway.Port)
	assert.Equal(t, DefaultGatewayHost, cfg.Gateway.Host)
}

func TestLoadConfig_MissingFilesAreNotAnError(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()

	origHome, origWd := osUserHomeDir, osGetwd
	osUserHomeDir = func() (string, error) { return home, nil }
	osGetwd = func() (string, error) { return project, nil }
	defer func() { osUserHomeDir, osGetwd = origHome, origWd }()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.Servers)
	assert.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: github
    transport: stdio
    command: github-server
`), 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "github", cfg.Servers[0].Name)

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: github
    transport: stdio
`), 0o644))

	_, err := LoadConfigFromFile(path)
	assert.ErrorIs(t, err, capability.ErrInvalidConfiguration)
}
