package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/app"
	"github.com/JakeFAU/festival-crawler/internal/config"
)

const testConfigYAML = `
fetch:
  retries: 1
  timeout: 5s
headless:
  enabled: false
logging:
  development: false
  level: error
`

type cliEnv struct {
	dir    string
	seeds  string
	state  string
	output string
	config string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		dir:    dir,
		seeds:  filepath.Join(dir, "seeds.txt"),
		state:  filepath.Join(dir, "state.json"),
		output: filepath.Join(dir, "data.jsonl"),
		config: filepath.Join(dir, "festcrawl.yaml"),
	}
	require.NoError(t, os.WriteFile(env.config, []byte(testConfigYAML), 0o600))
	return env
}

func (e cliEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	full := append(args,
		"--config", e.config,
		"--seeds", e.seeds,
		"--state", e.state,
		"--output", e.output,
	)
	root.SetArgs(full)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func festivalServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
<h1>Foo Film Festival</h1><p>Deadline: March 31, 2025</p>
<a href="/submit">Submit</a>
</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path) // #nosec G304 -- test temp path
	require.NoError(t, err)
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestRunThenStatus(t *testing.T) {
	srv := festivalServer(t)
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.seeds, []byte(srv.URL+"/\n"), 0o600))

	out, err := env.execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "batches=1 processed=1 festivals=1 errors=0 frontier=1")
	assert.Equal(t, 1, countLines(t, env.output))

	out, err = env.execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "visited=1 frontier=1 festivals=1 errors=0")
	assert.Contains(t, out, "next="+srv.URL+"/submit depth=1")
}

func TestRunContinuousDrainsFrontier(t *testing.T) {
	srv := festivalServer(t)
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.seeds, []byte(srv.URL+"/\n"), 0o600))

	out, err := env.execute(t, "run", "--continuous", "--batch-size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "processed=2 festivals=1 errors=1 frontier=0")
	assert.Equal(t, 1, countLines(t, env.output+".errors.jsonl"))
}

func TestStatusWithoutCheckpoint(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "visited=0 frontier=0 festivals=0 errors=0")
	assert.NotContains(t, out, "next=")
}

func TestPreviewWritesRecordsAndErrors(t *testing.T) {
	srv := festivalServer(t)
	env := newCLIEnv(t)
	urls := filepath.Join(env.dir, "urls.txt")
	require.NoError(t, os.WriteFile(urls, []byte("# preview\n"+srv.URL+"/\n"+srv.URL+"/missing\n"), 0o600))

	out, err := env.execute(t, "preview", "--urls", urls)
	require.NoError(t, err)
	assert.Contains(t, out, "urls=2 records=1 errors=1")
	assert.Equal(t, 1, countLines(t, env.output))
	assert.Equal(t, 1, countLines(t, env.output+".errors.jsonl"))

	_, err = os.Stat(env.state)
	assert.True(t, os.IsNotExist(err), "preview must not write a checkpoint")
}

func TestSmokeOffline(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "smoke")
	require.NoError(t, err)
	assert.Contains(t, out, "ok   analyzer")
	assert.Contains(t, out, "ok   extractor")
	assert.Contains(t, out, "ok   checkpoint")
	assert.NotContains(t, out, "fetch")
}

func TestInvalidConfigFails(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "status", "--max-depth", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestAppFactoryErrorSurfaces(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config, *zap.Logger) (*app.App, error) {
		return nil, errors.New("boom")
	}

	env := newCLIEnv(t)
	_, err := env.execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services: boom")
}

func TestResolveAppRequiresContainer(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
