package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config with in-process stores so tests need
// no external services.
func writeTestConfig(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	content := `
server:
  host: 127.0.0.1
  port: ` + strconv.Itoa(port) + `
metastore:
  path: ":memory:"
vectorstore:
  provider: chromem
  chromem:
    path: ` + filepath.Join(dir, "vectors") + `
embeddings:
  provider: hash
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildApp(t *testing.T) {
	prev := configPath
	configPath = writeTestConfig(t, 18765)
	defer func() { configPath = prev }()

	a, err := buildApp()
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.registry.Memory())
	require.NotNil(t, a.registry.Channel())
	require.NotNil(t, a.registry.Admin())
	require.Nil(t, a.registry.Limiter())

	ctx := context.Background()
	tenant, err := a.registry.Admin().CreateTenant(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "acme", tenant.Name)
}

func TestServeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	prev := configPath
	configPath = writeTestConfig(t, 18766)
	defer func() { configPath = prev }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(cmd, nil)
	}()

	// Wait for the listener to come up.
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://127.0.0.1:18766/health")
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
