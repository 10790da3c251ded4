package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/bgricker/pipeviz/internal/pipeline"
)

func TestDecodeYAMLEmpty(t *testing.T) {
	for _, doc := range []string{"", "   \n", "# only a comment\n"} {
		_, err := DecodeYAML(doc)
		var syntaxErr *pipeline.SyntaxError
		if !errors.As(err, &syntaxErr) {
			t.Fatalf("expected SyntaxError for %q, got %v", doc, err)
		}
	}
}

func TestDecodeYAMLRootMustBeMapping(t *testing.T) {
	_, err := DecodeYAML("- a\n- b\n")
	var syntaxErr *pipeline.SyntaxError
	if !errors.As(err, &syntaxErr) || syntaxErr.Line != 1 {
		t.Fatalf("expected SyntaxError at line 1, got %v", err)
	}
}

func TestPairsFollowMergeKeys(t *testing.T) {
	root, err := DecodeYAML(`base: &base
  image: golang
  stage: build
job:
  <<: *base
  stage: test
`)
	if err != nil {
		t.Fatalf("DecodeYAML returned error: %v", err)
	}
	job := Lookup(root, "job")
	if got := Scalar(Lookup(job, "stage")); got != "test" {
		t.Fatalf("expected explicit key to override merged key, got %q", got)
	}
	if got := Scalar(Lookup(job, "image")); got != "golang" {
		t.Fatalf("expected merged key, got %q", got)
	}
	var keys []string
	for _, p := range Pairs(job) {
		keys = append(keys, p.Key)
	}
	if strings.Join(keys, ",") != "image,stage" {
		t.Fatalf("unexpected pair order %v", keys)
	}
}

func TestExplicitKeyBeforeMergeWins(t *testing.T) {
	root, err := DecodeYAML(`.base: &base
  stage: build
  image: golang
unit:
  stage: test
  <<: *base
`)
	if err != nil {
		t.Fatalf("DecodeYAML returned error: %v", err)
	}
	unit := Lookup(root, "unit")
	if got := Scalar(Lookup(unit, "stage")); got != "test" {
		t.Fatalf("expected explicit stage to win over merged value, got %q", got)
	}
	if got := Scalar(Lookup(unit, "image")); got != "golang" {
		t.Fatalf("expected merged image, got %q", got)
	}
}

func TestMergeKeyList(t *testing.T) {
	root, err := DecodeYAML(`.a: &a
  image: alpine
  stage: build
.b: &b
  image: debian
  tags: [docker]
job:
  <<: [*a, *b]
  script: make
`)
	if err != nil {
		t.Fatalf("DecodeYAML returned error: %v", err)
	}
	job := Lookup(root, "job")
	if got := Scalar(Lookup(job, "image")); got != "alpine" {
		t.Fatalf("expected first merged mapping to win, got %q", got)
	}
	if got := Scalar(Lookup(job, "stage")); got != "build" {
		t.Fatalf("expected stage from first mapping, got %q", got)
	}
	if got := strings.Join(Strings(Lookup(job, "tags")), ","); got != "docker" {
		t.Fatalf("expected tags from second mapping, got %q", got)
	}
	var keys []string
	for _, p := range Pairs(job) {
		keys = append(keys, p.Key)
	}
	if strings.Join(keys, ",") != "image,stage,tags,script" {
		t.Fatalf("unexpected pair order %v", keys)
	}
}

func TestStringsFlattensAliases(t *testing.T) {
	root, err := DecodeYAML(`common: &common
  - make deps
script:
  - *common
  - make build
empty: ~
`)
	if err != nil {
		t.Fatalf("DecodeYAML returned error: %v", err)
	}
	if got := strings.Join(Strings(Lookup(root, "script")), ";"); got != "make deps;make build" {
		t.Fatalf("unexpected commands %q", got)
	}
	if got := Strings(Lookup(root, "empty")); got != nil {
		t.Fatalf("expected nil for null, got %v", got)
	}
	if got := Strings(Lookup(root, "missing")); got != nil {
		t.Fatalf("expected nil for missing key, got %v", got)
	}
}

func TestBool(t *testing.T) {
	root, err := DecodeYAML("a: true\nb: nope\n")
	if err != nil {
		t.Fatalf("DecodeYAML returned error: %v", err)
	}
	if v, ok := Bool(Lookup(root, "a")); !v || !ok {
		t.Fatalf("expected true literal")
	}
	if _, ok := Bool(Lookup(root, "b")); ok {
		t.Fatalf("expected non-boolean to be rejected")
	}
}

func TestWarn(t *testing.T) {
	var raw RawPipeline
	raw.Warn("build", 7, "something odd")
	if len(raw.Warnings) != 1 || raw.Warnings[0].String() != "line 7: build: something odd" {
		t.Fatalf("unexpected warnings %+v", raw.Warnings)
	}
}
