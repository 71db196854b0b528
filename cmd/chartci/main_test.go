package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartci/internal/config"
	"chartci/internal/core"
	"chartci/internal/security"
)

const cliPipeline = `
name: cli
jobs:
  - name: check
    on: [push, pull_request]
    steps:
      - run: "true"
  - name: release
    on: [push]
    main_only: true
    needs: [check]
    steps:
      - run: echo released > released.txt
  - name: flaky
    on: [pull_request]
    steps:
      - run: exit 3
`

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	pipeline := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(pipeline, []byte(cliPipeline), 0o644))

	cfg := "pipeline: " + pipeline + "\n" +
		"workdir: " + dir + "\n" +
		"log_dir: " + filepath.Join(dir, "logs") + "\n" +
		"ledger_path: " + filepath.Join(dir, "ledger.jsonl") + "\n" +
		"key_dir: " + filepath.Join(dir, "keys") + "\n"
	cfgPath := filepath.Join(dir, "chartci.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return workspace{dir: dir, config: cfgPath}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunPushToMain(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "run", "--config", ws.config, "--event", "push", "--branch", "main")
	require.NoError(t, err)
	assert.Contains(t, out, ": success")
	assert.Regexp(t, `release\s+success`, out)
	assert.FileExists(t, filepath.Join(ws.dir, "released.txt"))

	out, err = execute(t, "ledger", "verify", "--config", ws.config)
	require.NoError(t, err)
	assert.Equal(t, "ledger OK: 1 blocks\n", out)
}

func TestRunFeatureBranchSkipsMainOnlyJob(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "run", "--config", ws.config, "-e", "push", "-b", "refs/heads/feature")
	require.NoError(t, err)
	assert.Regexp(t, `release\s+skipped\s+condition not met`, out)
	assert.NoFileExists(t, filepath.Join(ws.dir, "released.txt"))
}

func TestRunFailureSetsExitCode(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "run", "--config", ws.config, "--pull-request", "--branch", "feature")
	var exit *exitCodeError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, out, ": failure")
	assert.Regexp(t, `flaky\s+failure`, out)
}

func TestRunUnsupportedTrigger(t *testing.T) {
	ws := newWorkspace(t)
	_, err := execute(t, "run", "--config", ws.config, "--event", "release")
	var unsupported *core.UnsupportedTriggerError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "release", unsupported.Type)
	assert.NoFileExists(t, filepath.Join(ws.dir, "ledger.jsonl"))
}

func TestPlanDoesNotExecute(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "plan", "--config", ws.config, "--event", "push", "--branch", "feature")
	require.NoError(t, err)
	assert.Regexp(t, `1\s+check\s+runs`, out)
	assert.Regexp(t, `2\s+release\s+skipped: condition not met`, out)
	assert.NoFileExists(t, filepath.Join(ws.dir, "ledger.jsonl"))
}

func TestPipelineFlagOverridesConfig(t *testing.T) {
	ws := newWorkspace(t)
	other := filepath.Join(ws.dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte(`
jobs:
  - name: nightly
    on: [schedule]
    steps:
      - run: "true"
`), 0o644))

	out, err := execute(t, "plan", "--config", ws.config, "--pipeline", other, "--event", "schedule")
	require.NoError(t, err)
	assert.Regexp(t, `1\s+nightly\s+runs`, out)
}

func TestLedgerInspect(t *testing.T) {
	ws := newWorkspace(t)
	_, err := execute(t, "run", "--config", ws.config, "--event", "push", "--branch", "main")
	require.NoError(t, err)

	out, err := execute(t, "ledger", "inspect", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "INDEX")
	assert.Regexp(t, `0\s+\S+\s+\S+\s+push\s+main\s+success`, out)
}

func TestLedgerRequiresPath(t *testing.T) {
	_, err := execute(t, "ledger", "verify")
	assert.ErrorContains(t, err, "ledger_path")
}

func TestKeygen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	out, err := execute(t, "keygen", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "public key: ")

	pub, err := security.LoadPublicKey(filepath.Join(dir, "ledger.pub"))
	require.NoError(t, err)
	priv, err := security.LoadPrivateKey(filepath.Join(dir, "ledger.priv"))
	require.NoError(t, err)
	assert.True(t, pub.Equal(priv.Public()))

	_, err = execute(t, "keygen", "--dir", dir)
	assert.ErrorContains(t, err, "already exists")
	_, err = execute(t, "keygen", "--dir", dir, "--force")
	assert.NoError(t, err)
}

func TestTriggerSignsEvent(t *testing.T) {
	t.Setenv(config.EnvWebhookSecret, "s3cret")
	var got core.EventPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path != "/events" || security.VerifyWebhook([]byte("s3cret"), body, r.Header.Get("X-Hub-Signature-256")) != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"r1"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "trigger", "--server", srv.URL+"/", "--event", "push", "--branch", "main")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"r1"}`, out)
	assert.Equal(t, core.EventPayload{Type: "push", Branch: "main"}, got)
}

func TestTriggerNeedsSecret(t *testing.T) {
	t.Setenv(config.EnvWebhookSecret, "")
	_, err := execute(t, "trigger", "--event", "schedule")
	assert.ErrorContains(t, err, config.EnvWebhookSecret)
}

func TestServeNeedsSecret(t *testing.T) {
	ws := newWorkspace(t)
	t.Setenv(config.EnvWebhookSecret, "")
	_, err := execute(t, "serve", "--config", ws.config)
	assert.ErrorContains(t, err, config.EnvWebhookSecret)
}

func TestExitCodeError(t *testing.T) {
	var err error = &exitCodeError{code: 1}
	var exit *exitCodeError
	assert.True(t, errors.As(err, &exit))
	assert.Equal(t, "exit status 1", err.Error())
}
