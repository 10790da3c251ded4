package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderCommandMermaid(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	out, err := execute(t, "render", "testdata/pipelines/Jenkinsfile")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}

	want := readGolden(t, filepath.Join(root, "testdata", "golden", "render_jenkins.mmd"))
	if diff := diffStrings(want, out); diff != "" {
		t.Fatalf("unexpected output:\n%s", diff)
	}
}

func TestRenderCommandDOT(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	out, err := execute(t, "render", "testdata/pipelines/.gitlab-ci.yml", "--diagram", "dot")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}
	if !strings.HasPrefix(out, `digraph "testdata/pipelines/.gitlab-ci.yml" {`) {
		t.Fatalf("expected dot output, got:\n%s", out)
	}
	if !strings.Contains(out, `shape="diamond"`) {
		t.Fatalf("expected approval gate as a diamond, got:\n%s", out)
	}
}

func TestRenderCommandDiscovery(t *testing.T) {
	root := projectRoot(t)
	tmp := t.TempDir()
	copyFile(t, filepath.Join(root, "testdata", "pipelines", "ci.yml"), filepath.Join(tmp, ".github", "workflows", "ci.yml"))
	copyFile(t, filepath.Join(root, "testdata", "pipelines", "Jenkinsfile"), filepath.Join(tmp, "Jenkinsfile"))
	chdir(t, tmp)

	out, err := execute(t, "render")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}
	first := strings.Index(out, "%% .github/workflows/ci.yml\ngraph TD\n")
	second := strings.Index(out, "%% Jenkinsfile\ngraph TD\n")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected both diagrams in sorted order, got:\n%s", out)
	}
}

func TestRenderCommandJSON(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	out, err := execute(t, "render", "testdata/pipelines/.gitlab-ci.yml", "--format", "json")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}

	var decoded struct {
		Pipelines []struct {
			Diagram     string                     `json:"diagram"`
			NodeDetails map[string]json.RawMessage `json:"nodeDetails"`
		} `json:"pipelines"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(decoded.Pipelines) != 1 || !strings.HasPrefix(decoded.Pipelines[0].Diagram, "graph TD\n") {
		t.Fatalf("expected diagram in json, got %+v", decoded.Pipelines)
	}
	if _, ok := decoded.Pipelines[0].NodeDetails["stage__deploy"]; !ok {
		t.Fatalf("expected node details keyed by id, got %v", decoded.Pipelines[0].NodeDetails)
	}
}

func TestRenderCommandSizeLimit(t *testing.T) {
	root := projectRoot(t)
	chdir(t, root)

	_, err := execute(t, "render", "testdata/pipelines/Jenkinsfile", "--max-bytes", "10")
	if err == nil {
		t.Fatalf("expected size limit failure")
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read file %q: %v", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatalf("mkdir %q: %v", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatalf("write file %q: %v", dst, err)
	}
}
