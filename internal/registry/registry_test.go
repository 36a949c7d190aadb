package registry_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"

	"recflow/internal/registry"
	"recflow/internal/services"
	"recflow/internal/taskdef"
)

func taskTOML(name, compute string) string {
	return "[task]\nname = \"" + name + "\"\nrequired_stages = [\"post_import\"]\n\n[[task.stages]]\nname = \"post_clean_raw\"\ncompute = \"" + compute + "\"\n"
}

func builtinCatalog() registry.Catalog {
	return registry.NewFSCatalog(fstest.MapFS{
		"builtin/resting.toml": {Data: []byte(taskTOML("resting", "detrend"))},
		"builtin/chirp.toml":   {Data: []byte(taskTOML("chirp", "passthrough"))},
		"builtin/README.md":    {Data: []byte("not a definition")},
	}, "builtin")
}

func workspaceCatalog(t *testing.T, files map[string]string) registry.Catalog {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		if err := afero.WriteFile(fs, "/ws/"+name, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return registry.NewDirCatalog(fs, "/ws")
}

func names(defs []*taskdef.Definition) []string {
	out := make([]string, len(defs))
	for i, def := range defs {
		out[i] = def.Name
	}
	return out
}

func TestDiscoverClassifiesCandidates(t *testing.T) {
	ws := workspaceCatalog(t, map[string]string{
		"oddball.yaml":   "task:\n  name: oddball\n  stages:\n    - name: post_epochs\n      compute: epochs\n",
		"notes.toml":     "[meta]\nauthor = \"lab\"\n",
		"broken.toml":    "[task\nname=",
		"two.toml":       "[[tasks]]\nname = \"a\"\n[[tasks.stages]]\nname = \"s\"\ncompute = \"detrend\"\n[[tasks]]\nname = \"b\"\n[[tasks.stages]]\nname = \"s\"\ncompute = \"detrend\"\n",
		"unknown.toml":   taskTOML("wavelets", "wavelet"),
		"nostages.toml":  "[task]\nname = \"empty\"\n",
		"ignored.txt":    "plain text",
		".hidden.toml":   taskTOML("hidden", "detrend"),
		"resting_v2.yml": "task:\n  name: other\n  stages:\n    - {name: post_comp, compute: rereference}\n",
	})
	reg := registry.New(builtinCatalog(), ws)
	d := reg.Discover(context.Background())

	if got := strings.Join(names(d.Valid), ","); got != "chirp,oddball,other,resting" {
		t.Fatalf("unexpected valid set %s", got)
	}
	if len(d.Skipped) != 1 || !strings.HasSuffix(d.Skipped[0].Source, "notes.toml") || d.Skipped[0].Reason != "no task definition found" {
		t.Fatalf("unexpected skipped %+v", d.Skipped)
	}
	if len(d.Invalid) != 4 {
		t.Fatalf("expected 4 invalid entries, got %+v", d.Invalid)
	}
	for _, inv := range d.Invalid {
		if !errors.Is(inv.Err, services.ErrDiscovery) {
			t.Fatalf("expected discovery error, got %v", inv.Err)
		}
		if strings.HasSuffix(inv.Source, "two.toml") && !strings.Contains(inv.Message(), "exactly one task definition, found 2") {
			t.Fatalf("unexpected message for two.toml: %s", inv.Message())
		}
		if strings.HasSuffix(inv.Source, "unknown.toml") && !strings.Contains(inv.Message(), "unknown compute kind") {
			t.Fatalf("unexpected message for unknown.toml: %s", inv.Message())
		}
	}
	if len(d.Overrides) != 0 {
		t.Fatalf("expected no overrides, got %+v", d.Overrides)
	}
}

func TestWorkspaceOverridesBuiltin(t *testing.T) {
	ws := workspaceCatalog(t, map[string]string{
		"resting.toml": taskTOML("resting", "lowpass"),
	})
	reg := registry.New(builtinCatalog(), ws)
	d := reg.Discover(context.Background())
	if len(d.Overrides) != 1 {
		t.Fatalf("expected exactly one override, got %+v", d.Overrides)
	}
	o := d.Overrides[0]
	if o.Name != "resting" || o.WorkspaceSource != "/ws/resting.toml" || o.BuiltinSource != "builtin:resting.toml" {
		t.Fatalf("unexpected override %+v", o)
	}
	if len(d.Valid) != 2 {
		t.Fatalf("shadowed built-in must not stay in the valid set, got %v", names(d.Valid))
	}

	def, ok := reg.Resolve(context.Background(), "RESTING")
	if !ok {
		t.Fatal("expected case-insensitive resolve")
	}
	if def.Origin != taskdef.OriginWorkspace || def.Stages[0].Compute != "lowpass" {
		t.Fatalf("expected workspace definition, got %+v", def)
	}
	if _, ok := reg.Resolve(context.Background(), "missing"); ok {
		t.Fatal("expected unresolved name to report false")
	}
}

func TestDuplicateNamesWithinCatalog(t *testing.T) {
	ws := workspaceCatalog(t, map[string]string{
		"a.toml": taskTOML("dup", "detrend"),
		"b.toml": taskTOML("DUP", "detrend"),
	})
	d := registry.New(nil, ws).Discover(context.Background())
	if len(d.Valid) != 1 || d.Valid[0].Source != "/ws/a.toml" {
		t.Fatalf("expected first source to win, got %+v", d.Valid)
	}
	if len(d.Invalid) != 1 || !strings.Contains(d.Invalid[0].Message(), "duplicate task name") {
		t.Fatalf("expected duplicate reported invalid, got %+v", d.Invalid)
	}
}

func TestDiscoverRescansEachCall(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := registry.New(nil, registry.NewDirCatalog(fs, "/ws"))
	if d := reg.Discover(context.Background()); len(d.Valid) != 0 {
		t.Fatalf("expected empty discovery for missing directory, got %v", names(d.Valid))
	}
	if err := afero.WriteFile(fs, "/ws/late.toml", []byte(taskTOML("late", "detrend")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := reg.Resolve(context.Background(), "late"); !ok {
		t.Fatal("expected new file to be discovered without caching")
	}
}

func TestResolveReturnsCopy(t *testing.T) {
	reg := registry.New(builtinCatalog(), nil)
	def, _ := reg.Resolve(context.Background(), "chirp")
	def.Stages[0].Compute = "mutated"
	again, _ := reg.Resolve(context.Background(), "chirp")
	if again.Stages[0].Compute != "passthrough" {
		t.Fatal("resolved definitions must not share state")
	}
}

type failingCatalog struct{}

func (failingCatalog) Origin() taskdef.Origin { return taskdef.OriginWorkspace }
func (failingCatalog) Root() string           { return "/unreadable" }
func (failingCatalog) Candidates() ([]registry.Candidate, error) {
	return nil, errors.New("permission denied")
}

func TestCatalogFailureIsRecordedNotFatal(t *testing.T) {
	d := registry.New(builtinCatalog(), failingCatalog{}).Discover(context.Background())
	if len(d.Valid) != 2 {
		t.Fatalf("expected built-ins despite workspace failure, got %v", names(d.Valid))
	}
	if len(d.Invalid) != 1 || d.Invalid[0].Source != "/unreadable" {
		t.Fatalf("expected catalog root reported invalid, got %+v", d.Invalid)
	}
}

type panickingCatalog struct{}

func (panickingCatalog) Origin() taskdef.Origin { return taskdef.OriginWorkspace }
func (panickingCatalog) Root() string           { return "/panics" }
func (panickingCatalog) Candidates() ([]registry.Candidate, error) {
	return []registry.Candidate{{
		Source: "/panics/bad.toml",
		Load:   func() (*taskdef.Definition, string, error) { panic("loader exploded") },
	}}, nil
}

func TestLoaderPanicIsInvalid(t *testing.T) {
	d := registry.New(nil, panickingCatalog{}).Discover(context.Background())
	if len(d.Invalid) != 1 || !strings.Contains(d.Invalid[0].Message(), "loader exploded") {
		t.Fatalf("expected panic captured as invalid, got %+v", d.Invalid)
	}
}

func TestEmbeddedBuiltinsAreValid(t *testing.T) {
	d := registry.New(registry.NewBuiltinCatalog(), nil).Discover(context.Background())
	if len(d.Invalid) != 0 {
		t.Fatalf("embedded definitions must load cleanly: %+v", d.Invalid)
	}
	want := map[string]bool{"chirp": true, "raw_export": true, "resting_eyes_open": true}
	for _, def := range d.Valid {
		delete(want, def.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing built-ins %v", want)
	}
}
