package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/bgricker/pipeviz/internal/pipeline"
	"github.com/bgricker/pipeviz/internal/provider"
)

func step(name string, commands ...string) provider.RawStep {
	return provider.RawStep{Name: name, Commands: commands}
}

func stageNames(p pipeline.Pipeline) string {
	names := make([]string, 0, len(p.Stages))
	for _, st := range p.Stages {
		names = append(names, st.Name)
	}
	return strings.Join(names, " | ")
}

func jobNames(st pipeline.Stage) string {
	names := make([]string, 0, len(st.Jobs))
	for _, job := range st.Jobs {
		names = append(names, job.Name)
	}
	return strings.Join(names, ",")
}

func boolPtr(v bool) *bool { return &v }

func TestLayerByNeeds(t *testing.T) {
	raw := provider.RawPipeline{
		Format: pipeline.FormatGitHubActions,
		Jobs: []provider.RawJob{
			{ID: "deploy", Name: "deploy", Needs: []string{"test", "lint"}, Steps: []provider.RawStep{step("ship", "make ship")}},
			{ID: "build", Name: "build", Steps: []provider.RawStep{step("compile", "make")}},
			{ID: "test", Name: "test", Needs: []string{"build"}},
			{ID: "lint", Name: "lint", Needs: []string{"build"}},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := stageNames(p); got != "build | test, lint | deploy" {
		t.Fatalf("unexpected stages %q", got)
	}
	middle := p.Stages[1]
	if got := jobNames(middle); got != "test,lint" {
		t.Fatalf("expected source order inside a layer, got %q", got)
	}
	if got := strings.Join(middle.Jobs[0].ParallelWith, ","); got != "lint" {
		t.Fatalf("expected test to run in parallel with lint, got %q", got)
	}
	if len(p.Stages[0].Jobs[0].ParallelWith) != 0 {
		t.Fatalf("single job stage should have no parallel siblings")
	}
	if p.Stages[2].Jobs[0].Steps[0].Commands[0] != "make ship" {
		t.Fatalf("steps not carried through: %+v", p.Stages[2].Jobs[0].Steps)
	}
}

func TestDependencyErrors(t *testing.T) {
	cases := map[string][]provider.RawJob{
		"unknown": {
			{ID: "a", Name: "a", Needs: []string{"ghost"}},
		},
		"self": {
			{ID: "a", Name: "a", Needs: []string{"a"}},
		},
		"cycle": {
			{ID: "a", Name: "a", Needs: []string{"c"}},
			{ID: "b", Name: "b", Needs: []string{"a"}},
			{ID: "c", Name: "c", Needs: []string{"b"}},
		},
	}
	for name, jobs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(provider.RawPipeline{Format: pipeline.FormatGitHubActions, Jobs: jobs})
			var normErr *pipeline.NormalizationError
			if !errors.As(err, &normErr) {
				t.Fatalf("expected NormalizationError, got %v", err)
			}
		})
	}
}

func TestGroupByStage(t *testing.T) {
	raw := provider.RawPipeline{
		Format:     pipeline.FormatGitLabCI,
		StageOrder: []string{".pre", "build", "test", "deploy", ".post"},
		Jobs: []provider.RawJob{
			{ID: "unit", Name: "unit", Stage: "test", Condition: "$CI_COMMIT_BRANCH"},
			{ID: "compile", Name: "compile", Stage: "build"},
			{ID: "e2e", Name: "e2e", Stage: "test", Condition: "$CI_COMMIT_BRANCH"},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := stageNames(p); got != "build | test" {
		t.Fatalf("expected empty stages to be dropped, got %q", got)
	}
	test := p.Stages[1]
	if test.Trigger == nil || test.Trigger.Condition != "$CI_COMMIT_BRANCH" {
		t.Fatalf("expected shared condition lifted to the stage, got %+v", test.Trigger)
	}
	if test.Jobs[0].Condition != "" {
		t.Fatalf("expected lifted condition cleared from jobs, got %q", test.Jobs[0].Condition)
	}
}

func TestGroupByStageErrors(t *testing.T) {
	undeclared := provider.RawPipeline{
		Format:     pipeline.FormatGitLabCI,
		StageOrder: []string{"build"},
		Jobs:       []provider.RawJob{{ID: "x", Name: "x", Stage: "ship"}},
	}
	laterNeed := provider.RawPipeline{
		Format:     pipeline.FormatGitLabCI,
		StageOrder: []string{"build", "test"},
		Jobs: []provider.RawJob{
			{ID: "a", Name: "a", Stage: "build", Needs: []string{"b"}},
			{ID: "b", Name: "b", Stage: "test"},
		},
	}
	for _, raw := range []provider.RawPipeline{undeclared, laterNeed} {
		_, err := Normalize(raw)
		var normErr *pipeline.NormalizationError
		if !errors.As(err, &normErr) {
			t.Fatalf("expected NormalizationError, got %v", err)
		}
	}
}

func TestApprovalGateNonBlocking(t *testing.T) {
	raw := provider.RawPipeline{
		Format:     pipeline.FormatGitLabCI,
		StageOrder: []string{"build", "deploy", "verify"},
		Jobs: []provider.RawJob{
			{ID: "build", Name: "build", Stage: "build"},
			{ID: "deploy", Name: "deploy", Stage: "deploy", Manual: true},
			{ID: "smoke", Name: "smoke", Stage: "verify"},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := stageNames(p); got != "build | Approve deploy | deploy | verify" {
		t.Fatalf("unexpected stages %q", got)
	}
	gate := p.Stages[1]
	if gate.Kind != pipeline.StageApproval || gate.Approval == nil {
		t.Fatalf("expected approval stage, got %+v", gate)
	}
	if gate.Approval.Approved != "deploy" || gate.Approval.Rejected != "verify" {
		t.Fatalf("unexpected approval targets %+v", gate.Approval)
	}
	if gate.Approval.Message != "Manual job: deploy" {
		t.Fatalf("unexpected message %q", gate.Approval.Message)
	}
	if p.Stages[2].Trigger == nil || !p.Stages[2].Trigger.Manual {
		t.Fatalf("expected gated stage to be marked manual")
	}
}

func TestApprovalGateBlocking(t *testing.T) {
	raw := provider.RawPipeline{
		Format:     pipeline.FormatGitLabCI,
		StageOrder: []string{"build", "deploy", "verify"},
		Jobs: []provider.RawJob{
			{ID: "build", Name: "build", Stage: "build"},
			{ID: "deploy", Name: "deploy", Stage: "deploy", Manual: true, AllowFailure: boolPtr(false)},
			{ID: "smoke", Name: "smoke", Stage: "verify", Manual: true},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	want := "build | Approve deploy | deploy | Approve verify | verify | deploy rejected | verify rejected"
	if got := stageNames(p); got != want {
		t.Fatalf("unexpected stages\n got: %q\nwant: %q", got, want)
	}
	if p.Stages[1].Approval.Rejected != "deploy rejected" {
		t.Fatalf("blocking gate should reject to a terminal stage, got %q", p.Stages[1].Approval.Rejected)
	}
	if p.Stages[3].Approval.Rejected != "verify rejected" {
		t.Fatalf("last gate has no successor and should reject to a terminal stage, got %q", p.Stages[3].Approval.Rejected)
	}
	if p.Stages[5].Kind != pipeline.StageTerminal || len(p.Stages[5].Jobs) != 0 {
		t.Fatalf("expected empty terminal stage, got %+v", p.Stages[5])
	}
}

func TestJenkinsInputAlwaysBlocks(t *testing.T) {
	raw := provider.RawPipeline{
		Format:     pipeline.FormatJenkins,
		StageOrder: []string{"Build", "Deploy", "Notify"},
		Jobs: []provider.RawJob{
			{ID: "Build", Name: "Build", Stage: "Build"},
			{ID: "Deploy", Name: "Deploy", Stage: "Deploy", Manual: true, ApprovalMessage: "Ship it?"},
			{ID: "Notify", Name: "Notify", Stage: "Notify"},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	gate, ok := p.Stage("Approve Deploy")
	if !ok {
		t.Fatalf("missing approval stage in %q", stageNames(p))
	}
	if gate.Approval.Message != "Ship it?" || gate.Approval.Rejected != "Deploy rejected" {
		t.Fatalf("unexpected approval %+v", gate.Approval)
	}
}

func TestDeduplicateOnlyOnCollision(t *testing.T) {
	raw := provider.RawPipeline{
		Format: pipeline.FormatGitHubActions,
		Jobs: []provider.RawJob{
			{ID: "a", Name: "Build"},
			{ID: "b", Name: "Build"},
			{ID: "c", Name: "Test", Needs: []string{"a"}},
			{ID: "d", Name: "Build, Build", Needs: []string{"c"}},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := stageNames(p); got != "Build, Build | Test | Build, Build (2)" {
		t.Fatalf("unexpected stage names %q", got)
	}
	if got := jobNames(p.Stages[0]); got != "Build,Build (2)" {
		t.Fatalf("unexpected job names %q", got)
	}
	if got := jobNames(p.Stages[1]); got != "Test" {
		t.Fatalf("non-colliding name must not change, got %q", got)
	}
}

func TestMatrixAndParallelExpansion(t *testing.T) {
	raw := provider.RawPipeline{
		Format: pipeline.FormatGitHubActions,
		Jobs: []provider.RawJob{
			{ID: "test", Name: "test", Matrix: []provider.MatrixAxis{
				{Name: "os", Values: []string{"linux", "mac"}},
				{Name: "go", Values: []string{"1.21", "1.22"}},
			}},
			{ID: "shard", Name: "shard", Parallel: 2},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	want := "test (os=linux, go=1.21),test (os=linux, go=1.22),test (os=mac, go=1.21),test (os=mac, go=1.22),shard 1/2,shard 2/2"
	if got := jobNames(p.Stages[0]); got != want {
		t.Fatalf("unexpected expansion\n got: %q\nwant: %q", got, want)
	}
	if len(p.Stages[0].Jobs[0].ParallelWith) != 5 {
		t.Fatalf("expected 5 siblings, got %v", p.Stages[0].Jobs[0].ParallelWith)
	}
}

func TestOversizedMatrixWarns(t *testing.T) {
	values := make([]string, 20)
	for i := range values {
		values[i] = strings.Repeat("x", i+1)
	}
	raw := provider.RawPipeline{
		Format: pipeline.FormatGitHubActions,
		Jobs: []provider.RawJob{{ID: "big", Name: "big", Line: 3, Matrix: []provider.MatrixAxis{
			{Name: "a", Values: values},
			{Name: "b", Values: values},
		}}},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := jobNames(p.Stages[0]); got != "big" {
		t.Fatalf("expected unexpanded job, got %q", got)
	}
	if len(p.Warnings) != 1 || p.Warnings[0].Line != 3 {
		t.Fatalf("expected one warning on line 3, got %+v", p.Warnings)
	}
}

func TestStepOrderPreserved(t *testing.T) {
	raw := provider.RawPipeline{
		Format:     pipeline.FormatJenkins,
		StageOrder: []string{"Build"},
		Jobs: []provider.RawJob{{ID: "Build", Name: "Build", Stage: "Build", Steps: []provider.RawStep{
			step("sh", "one"), step("sh", "two"), {Name: "sh", Commands: []string{"three"}, ContinueOnFailure: true},
		}}},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	steps := p.Stages[0].Jobs[0].Steps
	for i, want := range []string{"one", "two", "three"} {
		if steps[i].Commands[0] != want {
			t.Fatalf("step %d: expected %q, got %q", i, want, steps[i].Commands[0])
		}
	}
	if !steps[2].ContinueOnFailure {
		t.Fatalf("expected continue-on-failure carried through")
	}
}

func TestRepeatedStageNameKeepsOrder(t *testing.T) {
	raw := provider.RawPipeline{
		Format:     pipeline.FormatJenkins,
		StageOrder: []string{"Deploy", "Test", "Deploy"},
		Jobs: []provider.RawJob{
			{ID: "Deploy", Name: "Deploy", Stage: "Deploy", StageIndex: 1},
			{ID: "Test", Name: "Test", Stage: "Test", StageIndex: 2},
			{ID: "Deploy", Name: "Deploy", Stage: "Deploy", StageIndex: 3},
		},
	}
	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := stageNames(p); got != "Deploy | Test | Deploy (2)" {
		t.Fatalf("expected one stage per occurrence, got %q", got)
	}
	for _, st := range p.Stages {
		if len(st.Jobs) != 1 || len(st.Jobs[0].ParallelWith) != 0 {
			t.Fatalf("expected a single sequential job in %q, got %+v", st.Name, st.Jobs)
		}
	}
}

func TestStageIndexOutOfRange(t *testing.T) {
	raw := provider.RawPipeline{
		Format:     pipeline.FormatJenkins,
		StageOrder: []string{"Build"},
		Jobs:       []provider.RawJob{{ID: "Build", Name: "Build", Stage: "Build", StageIndex: 2}},
	}
	_, err := Normalize(raw)
	var normErr *pipeline.NormalizationError
	if !errors.As(err, &normErr) {
		t.Fatalf("expected NormalizationError, got %v", err)
	}
}
