package assign

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ferrule/maestro/pkg/models"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestLoadRoster(t *testing.T) {
	path := writeRoster(t, `
agents:
  - id: lead
    role: coordinator
    specialties: [search, analyze, create, synthesize]
  - id: digger
    specialties: [search]
`)

	roster, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if roster.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", roster.Size())
	}

	coord := roster.Coordinator()
	if coord == nil || coord.ID != "lead" {
		t.Errorf("Coordinator() = %v, want lead", coord)
	}

	// Omitted role defaults to specialist.
	for _, a := range roster.Snapshot() {
		if a.ID == "digger" && a.Role != models.RoleSpecialist {
			t.Errorf("digger role = %s, want specialist", a.Role)
		}
	}
}

func TestLoadRosterErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"no agents", "agents: []"},
		{"missing id", "agents:\n  - specialties: [search]"},
		{"duplicate id", "agents:\n  - id: a\n  - id: a"},
		{"unknown role", "agents:\n  - id: a\n    role: wizard"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRoster(t, tt.content)
			if _, err := LoadRoster(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadRosterMissingFile(t *testing.T) {
	if _, err := LoadRoster(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSnapshotSortedAndIsolated(t *testing.T) {
	roster := DefaultRoster()
	snap := roster.Snapshot()

	for i := 1; i < len(snap); i++ {
		if snap[i-1].ID >= snap[i].ID {
			t.Fatalf("snapshot not sorted: %s before %s", snap[i-1].ID, snap[i].ID)
		}
	}

	// Replacing the roster must not disturb an existing snapshot.
	roster.Replace([]*models.Agent{{ID: "only", Role: models.RoleCoordinator}})
	if len(snap) != 4 {
		t.Errorf("snapshot changed after Replace: %d agents", len(snap))
	}
	if roster.Size() != 1 {
		t.Errorf("Size() after Replace = %d, want 1", roster.Size())
	}
}

func TestDefaultRosterCoversDefaultCapabilities(t *testing.T) {
	roster := DefaultRoster()

	for _, cap := range []string{"search", "analyze", "compute", "create", "synthesize"} {
		covered := false
		for _, a := range roster.Snapshot() {
			if a.CanHandle(cap) {
				covered = true
				break
			}
		}
		if !covered {
			t.Errorf("no default agent covers %q", cap)
		}
	}
}
