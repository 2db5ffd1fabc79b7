package process

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
	"github.com/ruslano69/tdtp-steps/pkg/steps"
)

var invoices = schema.Table{ID: "t-invoices", Name: "invoices", DisplayName: "Invoices"}

func clearStep() *steps.DeleteStep {
	return &steps.DeleteStep{Action: steps.ClearAll, Table: invoices}
}

func dropStep() *steps.DeleteStep {
	return &steps.DeleteStep{Action: steps.DropTable, Table: invoices}
}

func sequences(p *Process) []int {
	out := make([]int, len(p.Steps))
	for i, d := range p.Steps {
		out[i] = d.Sequence
	}
	return out
}

func TestProcess_Add(t *testing.T) {
	p := New("monthly close")
	if p.ID == uuid.Nil {
		t.Fatal("New() ID is nil")
	}

	for i := 0; i < 3; i++ {
		if _, err := p.Add(clearStep(), steps.BuildOptions{}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if got := sequences(p); got[0] != 1 || got[2] != 3 {
		t.Errorf("sequences = %v, want [1 2 3]", got)
	}

	// ошибка построителя не меняет процесс
	_, err := p.Add(&steps.DeleteStep{Table: invoices}, steps.BuildOptions{})
	if err == nil {
		t.Fatal("Add() without action error = nil")
	}
	if len(p.Steps) != 3 {
		t.Errorf("len(Steps) = %d, want 3", len(p.Steps))
	}
}

func TestProcess_RemoveMove(t *testing.T) {
	p := New("p")
	p.Add(clearStep(), steps.BuildOptions{})
	p.Add(dropStep(), steps.BuildOptions{})
	p.Add(clearStep(), steps.BuildOptions{})

	if err := p.Move(2, 3); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if p.Steps[2].Query != "`invoices`" {
		t.Errorf("step 3 query = %q, want drop table", p.Steps[2].Query)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() after Move error = %v", err)
	}

	if err := p.Remove(1); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := sequences(p); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("sequences = %v, want [1 2]", got)
	}

	if err := p.Remove(5); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("Remove(5) error = %v, want ErrStepNotFound", err)
	}
}

func TestProcess_Replace(t *testing.T) {
	p := New("p")
	p.Add(clearStep(), steps.BuildOptions{})
	p.Add(clearStep(), steps.BuildOptions{})

	desc, err := p.Replace(2, dropStep(), steps.BuildOptions{})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if desc.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", desc.Sequence)
	}
	if got, _ := p.Step(2); got.Query != "`invoices`" {
		t.Errorf("Step(2).Query = %q", got.Query)
	}
}

func TestProcess_SaveLoad(t *testing.T) {
	p := New("round trip")
	p.Add(clearStep(), steps.BuildOptions{})
	p.Add(dropStep(), steps.BuildOptions{})

	path := filepath.Join(t.TempDir(), "process.json")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ID != p.ID || loaded.Name != p.Name {
		t.Errorf("Load() = %s %q, want %s %q", loaded.ID, loaded.Name, p.ID, p.Name)
	}
	if len(loaded.Steps) != 2 || loaded.Steps[1].Kind != steps.KindDelete {
		t.Errorf("Load() steps = %+v", loaded.Steps)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"no id", `{"name":"x","steps":[]}`},
		{"gap", `{"id":"6f1c2a8e-8b8f-4d8c-9e4e-0c1b2a3d4e5f","steps":[{"kind":"delete","sequence":1},{"kind":"delete","sequence":3}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data)); err == nil {
				t.Error("Decode() error = nil, want error")
			}
		})
	}
}

func TestDecode_SortsBySequence(t *testing.T) {
	data := `{"id":"6f1c2a8e-8b8f-4d8c-9e4e-0c1b2a3d4e5f","steps":[{"kind":"delete","sequence":2},{"kind":"lookup","sequence":1}]}`
	p, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Steps[0].Kind != steps.KindLookup {
		t.Errorf("Steps[0].Kind = %q, want lookup", p.Steps[0].Kind)
	}
}
