package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalog = `
name: orders
kind: stream
columns:
  - {name: orderId, type: VARCHAR, key: true}
  - {name: amount, type: DECIMAL}
  - {name: region, type: VARCHAR}
decimals:
  amount: {precision: 12, scale: 2}
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTranslateCommand(t *testing.T) {
	path := writeCatalog(t)

	out, err := run(t, "", "translate", "-s", path, "orders.Where(o => o.amount > 10.5m).Take(2)")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders WHERE amount > 10.5 LIMIT 2;\n", out)

	out, err = run(t, "orders.Count()\n", "translate", "-s", path, "--emit-changes")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM orders EMIT CHANGES;\n", out)

	_, err = run(t, "", "translate", "-s", path, "orders.Where(o => o.amt > 1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean 'amount'?")

	_, err = run(t, "  ", "translate", "-s", path)
	require.EqualError(t, err, "empty input")
}

func TestFilterCommand(t *testing.T) {
	path := writeCatalog(t)

	out, err := run(t, "", "filter", "-s", path, "--source", "orders", "region.startsWith('EU')")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders WHERE region LIKE 'EU%';\n", out)

	_, err = run(t, "", "filter", "-s", path, "region == 'EU'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")
}

func TestDDLCommand(t *testing.T) {
	path := writeCatalog(t)
	want := "CREATE STREAM orders (orderId VARCHAR KEY, amount DECIMAL(12, 2), region VARCHAR) " +
		"WITH (KAFKA_TOPIC='orders', VALUE_FORMAT='JSON');\n"

	out, err := run(t, "", "ddl", "-s", path)
	require.NoError(t, err)
	assert.Equal(t, want, out)

	out, err = run(t, "", "ddl", "-s", path, "orders")
	require.NoError(t, err)
	assert.Equal(t, want, out)

	_, err = run(t, "", "ddl", "-s", path, "orderz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean 'orders'?")
}

func TestConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.yaml"), []byte(catalog), 0o644))
	config := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("schemaDir: "+dir+"\nemitChanges: true\n"), 0o644))

	out, err := run(t, "", "translate", "--config", config, "orders")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders EMIT CHANGES;\n", out)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
