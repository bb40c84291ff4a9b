package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportPage = `<html><body>
<section><div class="card"><h2>Your Total Score</h2><div class="row"><div class="score">1500</div></div></div></section>
<section><div class="card"><h2>SAT Math</h2><div class="row"><div class="score">720</div></div></div></section>
</body></html>`

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("SCOREHIDER_LOGGING_LEVEL", "error")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"hide", "classify", "serve", "version"})

	for _, flag := range []string{"config", "settings", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "scorehider dev\n", out)
}

func TestHideFile(t *testing.T) {
	path := writeFile(t, "report.html", reportPage)

	out, errOut, err := execute(t, "", "hide", "--report", path)
	require.NoError(t, err)
	assert.NotContains(t, out, ">1500<")
	assert.NotContains(t, out, ">720<")
	assert.Contains(t, out, "hidden-score-text")
	assert.Contains(t, errOut, "score-1")
	assert.Contains(t, errOut, "math")
	assert.Contains(t, errOut, "hid 2 score(s)")
}

func TestHideStdinToFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "hidden.html")

	out, _, err := execute(t, reportPage, "hide", "-o", dest, "-")
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(written), "sat-score-hidden")
}

func TestHideSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.html")
	second := filepath.Join(dir, "second.htm")
	require.NoError(t, os.WriteFile(first, []byte(reportPage), 0o600))
	require.NoError(t, os.WriteFile(second, []byte(`<html><body><h2>Your Total Score</h2><div>1350</div></body></html>`), 0o600))
	outDir := filepath.Join(dir, "hidden")

	out, errOut, err := execute(t, "", "hide", "--report", "--out-dir", outDir, first, second)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(outDir, "first.hidden.html"))
	assert.Contains(t, errOut, "second.htm")
	assert.Contains(t, errOut, "hid 3 score(s)")

	for _, name := range []string{"first.hidden.html", "second.hidden.html"} {
		written, err := os.ReadFile(filepath.Join(outDir, name))
		require.NoError(t, err, name)
		assert.Contains(t, string(written), "sat-score-hidden", name)
	}
}

func TestHideSeveralFilesBesideInputs(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "report.html")
	require.NoError(t, os.WriteFile(good, []byte(reportPage), 0o600))
	missing := filepath.Join(dir, "missing.html")

	_, _, err := execute(t, "", "hide", good, missing)
	assert.ErrorContains(t, err, "partial failure")
	assert.ErrorContains(t, err, "missing.html")

	written, err := os.ReadFile(filepath.Join(dir, "report.hidden.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(written), ">1500<")
}

func TestHideErrors(t *testing.T) {
	_, _, err := execute(t, "", "hide")
	assert.ErrorContains(t, err, "no content")

	_, _, err = execute(t, "", "hide", filepath.Join(t.TempDir(), "missing.html"))
	assert.ErrorContains(t, err, "failed to read file")

	_, _, err = execute(t, reportPage, "hide", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, _, err = execute(t, "", "hide", "-o", "out.html", "a.html", "b.html")
	assert.ErrorContains(t, err, "--output takes a single input")

	_, _, err = execute(t, reportPage, "hide", "a.html", "-")
	assert.ErrorContains(t, err, "stdin cannot be combined")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"classify", "1450"}, "1450 total: good"},
		{[]string{"classify", "1,200"}, "1200 total: mid"},
		{[]string{"classify", "700", "--category", "math"}, "700 math: good"},
		{[]string{"classify", "450", "--category", "reading"}, "450 reading: bad"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, _, err := execute(t, "", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}
}

func TestClassifyWithSettings(t *testing.T) {
	settings := writeFile(t, "settings.json", `{"satScoreSettings": {"total": {"good": {"min": 1550, "max": 1600}, "bad": {"min": 400, "max": 999}}}}`)

	out, _, err := execute(t, "", "classify", "--settings", settings, "1500")
	require.NoError(t, err)
	assert.Equal(t, "1500 total: none\n", out)

	out, _, err = execute(t, "", "classify", "--settings", settings, "1200")
	require.NoError(t, err)
	assert.Equal(t, "1200 total: mid\n", out)
}

func TestClassifyErrors(t *testing.T) {
	_, _, err := execute(t, "", "classify", "abc")
	assert.ErrorContains(t, err, "not a score")

	_, _, err = execute(t, "", "classify", "--category", "science", "700")
	assert.ErrorContains(t, err, "unknown category")

	_, _, err = execute(t, "", "classify", "--log-level", "loud", "700")
	assert.Error(t, err)

	_, _, err = execute(t, "", "classify")
	assert.Error(t, err)
}

func TestServeInvalidConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 70000\n")
	_, _, err := execute(t, "", "serve", "--config", path)
	assert.ErrorContains(t, err, "server.port")
}
