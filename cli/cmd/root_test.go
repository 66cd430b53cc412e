package cmd_test

import (
	"bytes"
	"crypto/sha1"
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

	"ocm.software/open-component-model/bindings/go/maven/cli/cmd"
)

func newRepository(t *testing.T) string {
	t.Helper()
	files := map[string]string{
		"/maven2/org/example/app/1.0/app-1.0.pom": `<project>
  <groupId>org.example</groupId><artifactId>app</artifactId><version>1.0</version>
  <name>Example App</name>
  <dependencies>
    <dependency><groupId>org.example</groupId><artifactId>lib</artifactId><version>2.0</version></dependency>
    <dependency><groupId>org.example</groupId><artifactId>missing</artifactId><version>1.0</version></dependency>
    <dependency><groupId>junit</groupId><artifactId>junit</artifactId><version>4.13</version><scope>test</scope></dependency>
  </dependencies>
</project>`,
		"/maven2/org/example/lib/2.0/lib-2.0.pom": `<project><groupId>org.example</groupId><artifactId>lib</artifactId><version>2.0</version></project>`,
		"/maven2/org/example/app/1.0/app-1.0.jar": "app",
		"/maven2/org/example/lib/2.0/lib-2.0.jar": "lib",
	}
	for path, content := range map[string]string{
		"/maven2/org/example/app/1.0/app-1.0.jar": "app",
		"/maven2/org/example/lib/2.0/lib-2.0.jar": "lib",
	} {
		files[path+".sha1"] = fmt.Sprintf("%x", sha1.Sum([]byte(content)))
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(server.Close)
	return server.URL + "/maven2"
}

type invocation struct {
	repo  string
	local string
	db    string
}

func newInvocation(t *testing.T) invocation {
	return invocation{
		repo:  newRepository(t),
		local: t.TempDir(),
		db:    filepath.Join(t.TempDir(), "cache.db"),
	}
}

func (i invocation) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cmd.New()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{
		"--repository", i.repo,
		"--local-repository", i.local,
		"--cache-db", i.db,
	}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestResolve(t *testing.T) {
	inv := newInvocation(t)
	out, err := inv.run(t, "resolve", "org.example:app:1.0")
	require.NoError(t, err)
	assert.Equal(t, inv.repo+"/org/example/app/1.0/app-1.0.jar\n", out)

	out, err = inv.run(t, "resolve", "org.example:app:1.0", "--packaging", "pom")
	require.NoError(t, err)
	assert.Equal(t, inv.repo+"/org/example/app/1.0/app-1.0.pom\n", out)

	_, err = inv.run(t, "resolve", "org.example:app")
	require.Error(t, err)
	_, err = inv.run(t, "resolve", "org.example:unknown:1.0")
	require.Error(t, err)
}

func TestDeps(t *testing.T) {
	inv := newInvocation(t)
	out, err := inv.run(t, "deps", "org.example:app:1.0", "-o", "json")
	require.NoError(t, err)

	var view struct {
		Root     string `json:"root"`
		Packages []struct {
			Coordinate string `json:"coordinate"`
			Name       string `json:"name"`
			URL        string `json:"url"`
		} `json:"packages"`
		Failures []struct {
			Coordinate string `json:"coordinate"`
			Kind       string `json:"kind"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "org.example:app:1.0:", view.Root)
	require.Len(t, view.Packages, 2)
	assert.Equal(t, "Example App", view.Packages[0].Name)
	assert.Equal(t, "org.example:lib:2.0:", view.Packages[1].Coordinate)
	assert.Equal(t, inv.repo+"/org/example/lib/2.0/lib-2.0.jar", view.Packages[1].URL)
	require.Len(t, view.Failures, 1)
	assert.Equal(t, "org.example:missing:1.0:", view.Failures[0].Coordinate)
	assert.Equal(t, "unresolvable", view.Failures[0].Kind)

	out, err = inv.run(t, "deps", "org.example:app:1.0", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "org.example:lib:2.0:")
	assert.Contains(t, out, "failures:")

	out, err = inv.run(t, "deps", "org.example:app:1.0")
	require.NoError(t, err)
	assert.Contains(t, out, "org.example:lib:2.0:")
	assert.NotContains(t, out, "junit")

	_, err = inv.run(t, "deps", "org.example:app:1.0", "-o", "xml")
	require.Error(t, err)
}

func TestUpdateAndVerify(t *testing.T) {
	inv := newInvocation(t)
	out, err := inv.run(t, "verify", "org.example:app:1.0", "--updates", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, `"coordinate"`))

	out, err = inv.run(t, "update", "org.example:app:1.0")
	require.NoError(t, err)
	assert.Contains(t, out, "updated org.example:app:1.0:")
	assert.Contains(t, out, "updated org.example:lib:2.0:")
	content, err := os.ReadFile(filepath.Join(inv.local, "org", "example", "lib", "2.0", "lib-2.0.jar"))
	require.NoError(t, err)
	assert.Equal(t, "lib", string(content))

	out, err = inv.run(t, "verify", "org.example:app:1.0", "--updates", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestCacheDrop(t *testing.T) {
	inv := newInvocation(t)
	_, err := inv.run(t, "resolve", "org.example:app:1.0")
	require.NoError(t, err)

	out, err := inv.run(t, "cache", "list", "-o", "json")
	require.NoError(t, err)
	var records []struct {
		Coordinate string `json:"coordinate"`
		URL        string `json:"url"`
		Expired    bool   `json:"expired"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "org.example:app:1.0:", records[0].Coordinate)
	assert.Equal(t, inv.repo+"/org/example/app/1.0/app-1.0", records[0].URL)
	assert.False(t, records[0].Expired)

	out, err = inv.run(t, "cache", "list", "org.other")
	require.NoError(t, err)
	assert.NotContains(t, out, "org.example:app")

	out, err = inv.run(t, "cache", "drop", "org.example")
	require.NoError(t, err)
	assert.Contains(t, out, "dropped 2 cached records of org.example")

	out, err = inv.run(t, "cache", "drop")
	require.NoError(t, err)
	assert.Contains(t, out, "dropped all cached locations")

	_, err = inv.run(t, "--no-cache", "cache", "drop")
	require.Error(t, err)
	_, err = inv.run(t, "--no-cache", "cache", "list")
	require.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	inv := newInvocation(t)
	path := filepath.Join(t.TempDir(), "maven.prom")
	_, err := inv.run(t, "--metrics-file", path, "--loglevel", "debug", "resolve", "org.example:app:1.0")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ocm_maven_repository_attempts_total{outcome="found",repository="`+inv.repo+`"}`)
	assert.Contains(t, string(data), "ocm_maven_resolution_duration_seconds_bucket")

	_, err = inv.run(t, "--loglevel", "trace", "resolve", "org.example:app:1.0")
	require.Error(t, err)
}
