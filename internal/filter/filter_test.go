package filter

import (
	"strings"
	"testing"

	"github.com/bgricker/pipeviz/internal/pipeline"
)

func stage(name string, jobs ...pipeline.Job) pipeline.Stage {
	return pipeline.Stage{Name: name, Kind: pipeline.StageNormal, Jobs: jobs}
}

func job(name string, steps ...pipeline.Step) pipeline.Job {
	return pipeline.Job{Name: name, ID: strings.ToLower(name), Steps: steps}
}

func step(name, cmd string) pipeline.Step {
	return pipeline.Step{Name: name, Commands: []string{cmd}}
}

func gate(name, approved, rejected string) pipeline.Stage {
	return pipeline.Stage{
		Name:     name,
		Kind:     pipeline.StageApproval,
		Jobs:     []pipeline.Job{},
		Trigger:  &pipeline.Trigger{Manual: true},
		Approval: &pipeline.Approval{Approved: approved, Rejected: rejected},
	}
}

func stageNames(p pipeline.Pipeline) string {
	names := make([]string, 0, len(p.Stages))
	for _, st := range p.Stages {
		names = append(names, st.Name)
	}
	return strings.Join(names, " | ")
}

func TestApplyByJob(t *testing.T) {
	p := pipeline.Pipeline{Stages: []pipeline.Stage{
		stage("Build", job("Build", step("Build", "go build"))),
		stage("Test", job("Test", step("Test", "go test"))),
	}}

	patterns, err := Compile([]string{"build"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	filtered := Apply(p, Criteria{Jobs: patterns})
	if got := stageNames(filtered); got != "Build" {
		t.Fatalf("expected only Build stage, got %q", got)
	}
	if len(p.Stages) != 2 {
		t.Fatalf("input pipeline must not be modified")
	}
}

func TestApplySteps(t *testing.T) {
	p := pipeline.Pipeline{Stages: []pipeline.Stage{
		stage("Test", job("Test",
			pipeline.Step{Name: "Install"},
			step("Lint", "go vet ./..."),
			step("Unit", "go test ./..."),
		)),
	}}

	c, err := CompileCriteria(nil, []string{"/go/"}, []string{"unit"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	filtered := Apply(p, c)
	if len(filtered.Stages) != 1 {
		t.Fatalf("expected stage retained")
	}
	steps := filtered.Stages[0].Jobs[0].Steps
	if len(steps) != 1 {
		t.Fatalf("expected 1 step after filtering, got %d", len(steps))
	}
	if steps[0].Name != "Lint" {
		t.Fatalf("expected Lint step, got %s", steps[0].Name)
	}
}

func TestApplyEmptyCriteria(t *testing.T) {
	p := pipeline.Pipeline{Stages: []pipeline.Stage{stage("Build", job("Build"))}}
	if got := stageNames(Apply(p, Criteria{})); got != "Build" {
		t.Fatalf("empty criteria should keep everything, got %q", got)
	}
}

func TestApplyGates(t *testing.T) {
	p := pipeline.Pipeline{Stages: []pipeline.Stage{
		stage("build", job("build", step("make", "make"))),
		gate("Approve deploy", "deploy", "verify"),
		stage("deploy", job("deploy", step("ship", "./ship.sh"))),
		stage("verify", job("smoke", step("smoke", "make smoke"))),
	}}

	patterns, err := Compile([]string{"/^(build|deploy)$/"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	filtered := Apply(p, Criteria{Jobs: patterns})
	if got := stageNames(filtered); got != "build | Approve deploy | deploy | deploy rejected" {
		t.Fatalf("unexpected stages %q", got)
	}
	gateStage, _ := filtered.Stage("Approve deploy")
	if gateStage.Approval.Rejected != "deploy rejected" {
		t.Fatalf("expected rejected branch moved to a terminal, got %q", gateStage.Approval.Rejected)
	}
	if p.Stages[1].Approval.Rejected != "verify" {
		t.Fatalf("input approval must not be modified")
	}
	last := filtered.Stages[len(filtered.Stages)-1]
	if last.Kind != pipeline.StageTerminal {
		t.Fatalf("expected terminal stage last, got %s", last.Kind)
	}

	patterns, err = Compile([]string{"build", "smoke"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	filtered = Apply(p, Criteria{Jobs: patterns})
	if got := stageNames(filtered); got != "build | verify" {
		t.Fatalf("gate without its stage should be dropped, got %q", got)
	}
}

func TestApplyKeepsExistingTerminal(t *testing.T) {
	p := pipeline.Pipeline{Stages: []pipeline.Stage{
		gate("Approve deploy", "deploy", "deploy rejected"),
		stage("deploy", job("deploy", step("ship", "./ship.sh"))),
		stage("docs", job("docs", step("docs", "make docs"))),
		{Name: "deploy rejected", Kind: pipeline.StageTerminal, Jobs: []pipeline.Job{}},
	}}
	patterns, err := Compile([]string{"deploy"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := stageNames(Apply(p, Criteria{Jobs: patterns})); got != "Approve deploy | deploy | deploy rejected" {
		t.Fatalf("unexpected stages %q", got)
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile([]string{"/(/"}); err == nil {
		t.Fatalf("expected compile error")
	}
	if _, err := CompileCriteria(nil, nil, []string{"/[/"}); err == nil {
		t.Fatalf("expected compile error for skip patterns")
	}
}
