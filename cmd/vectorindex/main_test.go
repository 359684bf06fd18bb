package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorindex/internal/config"
	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
)

// keywordVector counts "cat", "dog" and "fish".
func keywordVector(text string) []float32 {
	v := []float32{0, 0, 0}
	for _, tok := range similarity.Tokenize(text) {
		switch tok {
		case "cat", "cats":
			v[0]++
		case "dog", "dogs":
			v[1]++
		case "fish":
			v[2]++
		}
	}
	if v[0]+v[1]+v[2] == 0 {
		return []float32{1, 1, 1}
	}
	return v
}

// newEmbedServer serves the TEI /embed endpoint with keyword vectors.
func newEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs json.RawMessage `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var texts []string
		if err := json.Unmarshal(req.Inputs, &texts); err != nil {
			var one string
			if err := json.Unmarshal(req.Inputs, &one); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			texts = []string{one}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = keywordVector(text)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config file for a temp SQLite store and the fake
// embedding server and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)

	srv := newEmbedServer(t)
	content := fmt.Sprintf(`index:
  index_name: docs
  dimensions: 3
  index_type:
    kind: brute_force
  max_retries: 0
store:
  backend: sqlite
  sqlite:
    path: %s
embeddings:
  provider: tei
  model: test/keywords
  base_url: %s
  dimensions: 3
logging:
  level: error
`, filepath.Join(dir, "index.db"), srv.URL)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_AddSearchGetDelete(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "", "--config", cfg, "add", "--id", "a,b,c",
		"a cat on a mat", "a dog in the park", "fish in the sea")
	require.NoError(t, err)
	var added struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, []string{"a", "b", "c"}, added.IDs)

	out, err = run(t, "", "--config", cfg, "search", "cat", "-n", "2")
	require.NoError(t, err)
	var results []vectorindex.Result[map[string]any]
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "a cat on a mat", results[0].Payload[vectorindex.ContentKey])

	out, err = run(t, "", "--config", cfg, "search", "cat", "-n", "3", "--ids")
	require.NoError(t, err)
	var ids []vectorindex.IDResult
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	require.Len(t, ids, 3)
	assert.Equal(t, "a", ids[0].ID)

	out, err = run(t, "", "--config", cfg, "get", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "a dog in the park")

	_, err = run(t, "", "--config", cfg, "delete", "b")
	require.NoError(t, err)
	_, err = run(t, "", "--config", cfg, "get", "b")
	assert.ErrorContains(t, err, "not found")
}

func TestCLI_AddFromStdin(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "dogs bark\n\nfish swim\n", "--config", cfg, "add")
	require.NoError(t, err)
	var added struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Len(t, added.IDs, 2)
}

func TestCLI_SearchFilters(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "", "--config", cfg, "add", "--id", "a,b", "cat", "cat dog")
	require.NoError(t, err)

	out, err := run(t, "", "--config", cfg, "search", "cat", "--pre-filter", "id = 'b'")
	require.NoError(t, err)
	var results []vectorindex.Result[map[string]any]
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	_, err = run(t, "", "--config", cfg, "search", "cat", "--pre-filter", "id = ")
	assert.Error(t, err)
}

func TestCLI_Hybrid(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "", "--config", cfg, "add", "--id", "a,b", "the cat sleeps", "a dog runs")
	require.NoError(t, err)

	out, err := run(t, "", "--config", cfg, "hybrid", "cat", "--weight", "0.5")
	require.NoError(t, err)
	var results []vectorindex.Result[map[string]any]
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestCLI_DeleteBatchIsAtomic(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "", "--config", cfg, "add", "--id", "a,b", "cat", "dog")
	require.NoError(t, err)

	_, err = run(t, "", "--config", cfg, "delete", "a", "missing")
	require.Error(t, err)

	out, err := run(t, "", "--config", cfg, "get", "a")
	require.NoError(t, err)
	assert.Contains(t, out, `"a"`)
}

func TestCLI_IndexCreate(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "", "--config", cfg, "index", "create", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, `"table": "notes"`)
	assert.Contains(t, out, `"dimensions": 3`)

	_, err = run(t, "", "--config", cfg, "index", "create", "bad table")
	assert.Error(t, err)
}

func TestCLI_IndexPing(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "", "--config", cfg, "index", "ping")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
}

func TestCLI_ConfigValidate(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "", "--config", cfg, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("index:\n  dimensions: -1\n"), 0o600))
	_, err = run(t, "", "--config", bad, "config", "validate")
	assert.Error(t, err)
}

func TestCLI_ConfigShowRedactsSecrets(t *testing.T) {
	cfg := writeConfig(t)
	t.Setenv("VECTORINDEX_EMBEDDINGS__API_KEY", "sk-very-secret")
	out, err := run(t, "", "--config", cfg, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, "[REDACTED]")
}

func TestCLI_ConfigInit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	out, err := run(t, "", "config", "init")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = run(t, "", "config", "init")
	assert.ErrorContains(t, err, "already exists")
	_, err = run(t, "", "config", "init", "--force")
	assert.NoError(t, err)
}

func TestApp_CloseWipesCredentials(t *testing.T) {
	path := writeConfig(t)
	t.Setenv("VECTORINDEX_EMBEDDINGS__API_KEY", "tei-secret")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, a.secrets, 1)
	key := a.secrets[0]
	require.NotNil(t, key)
	assert.True(t, key.IsSet())

	_ = a.Close()
	assert.True(t, key.Wiped())
	assert.False(t, key.IsSet())
}
