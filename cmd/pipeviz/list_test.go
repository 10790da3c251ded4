package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListCommandBasic(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	out, err := execute(t, "list", "testdata/pipelines/Jenkinsfile", "testdata/pipelines/.gitlab-ci.yml")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}

	for _, want := range []string{
		"Pipeline testdata/pipelines/Jenkinsfile [jenkins]",
		"  Stage Build\n    Job Build\n",
		"Pipeline testdata/pipelines/.gitlab-ci.yml [gitlab]",
		"  Gate Approve deploy\n",
		"SUMMARY: 2 pipelines",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Index(out, "Jenkinsfile") > strings.Index(out, ".gitlab-ci.yml") {
		t.Fatalf("expected argument order to be kept, got:\n%s", out)
	}
}

func TestListCommandFilters(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	out, err := execute(t, "list", "testdata/pipelines/ci.yml", "--job", "test", "--only-step", "/vet/")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}

	if !strings.Contains(out, "  Stage test\n    Job test\n      • Vet\n") {
		t.Fatalf("expected filtered job, got:\n%s", out)
	}
	if strings.Contains(out, "Job build") || strings.Contains(out, "• Unit") {
		t.Fatalf("filtered jobs or steps leaked into output:\n%s", out)
	}
}

func TestListCommandJSON(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	out, err := execute(t, "list", "testdata/pipelines/ci.yml", "--format", "json")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}

	var decoded struct {
		Pipelines []struct {
			Path   string `json:"path"`
			Format string `json:"format"`
			Name   string `json:"name"`
			Stages int    `json:"stages"`
			Jobs   int    `json:"jobs"`
		} `json:"pipelines"`
		Summary struct {
			TotalPipelines int `json:"total_pipelines"`
			TotalSteps     int `json:"total_steps"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(decoded.Pipelines) != 1 {
		t.Fatalf("expected one pipeline, got %+v", decoded.Pipelines)
	}
	p := decoded.Pipelines[0]
	if p.Format != "github" || p.Name != "CI" || p.Stages != 2 || p.Jobs != 2 {
		t.Fatalf("unexpected pipeline entry %+v", p)
	}
	if decoded.Summary.TotalPipelines != 1 || decoded.Summary.TotalSteps != 4 {
		t.Fatalf("unexpected summary %+v", decoded.Summary)
	}
}

func TestListCommandConfig(t *testing.T) {
	root := projectRoot(t)
	tmp := t.TempDir()
	copyDir(t, filepath.Join(root, "testdata", "pipelines"), filepath.Join(tmp, "pipelines"))

	configYAML := []byte(`paths:
  - pipelines/ci.yml
jobs:
  - /^build$/
format: json
`)
	if err := os.WriteFile(filepath.Join(tmp, ".pipeviz.yml"), configYAML, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, tmp)

	out, err := execute(t, "list")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}
	if !strings.Contains(out, `"path": "pipelines/ci.yml"`) || !strings.Contains(out, `"jobs": 1`) {
		t.Fatalf("expected config paths and filters applied, got:\n%s", out)
	}
}

func TestListCommandFailure(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "Jenkinsfile"), []byte("pipeline {\n"), 0o644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	chdir(t, tmp)

	out, err := execute(t, "list")
	if err == nil {
		t.Fatalf("expected error for an unparsable pipeline")
	}
	if !strings.Contains(err.Error(), "1 of 1 pipelines failed") {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(out, "Pipeline Jenkinsfile\n  error: parse Jenkinsfile") {
		t.Fatalf("expected error entry, got:\n%s", out)
	}
}

func TestListCommandNothingFound(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := execute(t, "list"); err == nil || !strings.Contains(err.Error(), "no pipeline definitions found") {
		t.Fatalf("expected discovery error, got %v", err)
	}
}

func TestInvalidFlagValues(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	if _, err := execute(t, "list", "testdata/pipelines/ci.yml", "--format", "xml"); err == nil {
		t.Fatalf("expected validation error for --format")
	}
	if _, err := execute(t, "list", "testdata/pipelines/ci.yml", "--job", "/(/"); err == nil {
		t.Fatalf("expected compile error for --job")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	return buf.String(), err
}

func projectRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root := filepath.Clean(filepath.Join(wd, "..", ".."))
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("locate project root: %v", err)
	}
	return root
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %q: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore dir: %v", err)
		}
	})
}

func readGolden(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden %q: %v", path, err)
	}
	return string(data)
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	entries, err := os.ReadDir(src)
	if err != nil {
		t.Fatalf("read dir %q: %v", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatalf("mkdir %q: %v", dst, err)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			copyDir(t, srcPath, dstPath)
			continue
		}
		data, err := os.ReadFile(srcPath)
		if err != nil {
			t.Fatalf("read file %q: %v", srcPath, err)
		}
		if err := os.WriteFile(dstPath, data, 0o644); err != nil {
			t.Fatalf("write file %q: %v", dstPath, err)
		}
	}
}

func diffStrings(want, got string) string {
	if want == got {
		return ""
	}
	return "--- want\n" + want + "\n--- got\n" + got
}
