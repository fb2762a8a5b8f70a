package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
process:
  name: cli
http:
  addr: ""
components:
  - name: wave
    type: sine
    config:
      period: 5ms
  - name: log
    type: collector
    config:
      path: %s
      period: 5ms
connections:
  - client_component: log
    client_interface: Source
    server_component: wave
    server_interface: Main
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mts.yaml")
	body := []byte(fmtConfig(filepath.Join(dir, "out.jsonl")))
	require.NoError(t, os.WriteFile(path, body, 0o600))
	return path
}

func fmtConfig(out string) string {
	return string(bytes.Replace([]byte(testConfig), []byte("%s"), []byte(out), 1))
}

func TestParseFlags(t *testing.T) {
	cli, err := parseFlags([]string{"-c", "a.yaml", "--config", "b.yaml", "--debug", "--log-format=text"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cli.ConfigPaths)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, "text", cli.LogFormat)

	t.Setenv("MTS_CONFIG", "x.yaml,y.json")
	t.Setenv("MTS_LOG_LEVEL", "warn")
	cli, err = parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.yaml", "y.json"}, cli.ConfigPaths)
	assert.Equal(t, "warn", cli.LogLevel)

	_, err = parseFlags([]string{"--nope"})
	assert.Error(t, err)

	cli, err = parseFlags([]string{"-h"})
	require.NoError(t, err)
	assert.True(t, cli.ShowHelp)
}

func TestValidateFlags(t *testing.T) {
	path := writeConfig(t)
	tests := []struct {
		name    string
		cli     CLIConfig
		wantErr bool
	}{
		{"valid", CLIConfig{ConfigPaths: []string{path}, LogLevel: "info", LogFormat: "json"}, false},
		{"missing file", CLIConfig{ConfigPaths: []string{"/nonexistent.yaml"}, LogLevel: "info", LogFormat: "json"}, true},
		{"bad level", CLIConfig{ConfigPaths: []string{path}, LogLevel: "loud", LogFormat: "json"}, true},
		{"bad format", CLIConfig{ConfigPaths: []string{path}, LogLevel: "info", LogFormat: "xml"}, true},
		{"version skips checks", CLIConfig{ShowVersion: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(&tt.cli)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, appName, rec["service"])
	assert.Equal(t, Version, rec["version"])
}

func TestRun_InfoFlags(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &out, &out))
	assert.Contains(t, out.String(), Version)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--classes"}, &out, &out))
	assert.Contains(t, out.String(), "sine")
	assert.Contains(t, out.String(), "collector")
	assert.Contains(t, out.String(), "sine.Main")
}

func TestRun_Validate(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-c", writeConfig(t), "--validate"}, &out, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Configuration is valid")
}

func TestRun_Dot(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-c", writeConfig(t), "--dot"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "digraph")
	assert.Contains(t, stdout.String(), `"log:Source" -> "wave:Main"`)
	assert.NotContains(t, stdout.String(), `"level"`)
}

func TestRun_UntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-c", writeConfig(t), "--shutdown-timeout=2s"}, &out, &out) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
