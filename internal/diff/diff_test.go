package diff

import (
	"testing"
)

func TestCompute_Identical(t *testing.T) {
	t.Parallel()

	side := Side{ID: "a", Hashes: map[string]string{"server.properties": "h1", "ops.json": "h2"}}
	res := Compute(side, Side{ID: "b", Hashes: side.Hashes})

	if res.HasChanges || len(res.Changes) != 0 {
		t.Errorf("changes = %+v, want none", res.Changes)
	}
	if res.Summary != (Summary{}) {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Changes == nil {
		t.Error("changes should encode as an empty list, not null")
	}
}

func TestCompute_OneAdded(t *testing.T) {
	t.Parallel()

	base := Side{ID: "a", Hashes: map[string]string{"server.properties": "h1"}}
	compare := Side{
		ID:      "b",
		Hashes:  map[string]string{"server.properties": "h1", "ops.json": "h2"},
		Content: map[string][]byte{"ops.json": []byte("[]")},
	}

	res := Compute(base, compare)
	if len(res.Changes) != 1 {
		t.Fatalf("changes = %+v", res.Changes)
	}
	c := res.Changes[0]
	if c.Path != "ops.json" || c.Status != Added || c.NewHash != "h2" || c.NewContent != "[]" || c.OldHash != "" {
		t.Errorf("change = %+v", c)
	}
	if res.Summary != (Summary{Added: 1}) || !res.HasChanges {
		t.Errorf("summary = %+v hasChanges = %v", res.Summary, res.HasChanges)
	}
}

func TestCompute_ModifiedAndDeleted(t *testing.T) {
	t.Parallel()

	base := Side{
		ID:      "a",
		Hashes:  map[string]string{"server.properties": "h1", "whitelist.json": "w"},
		Content: map[string][]byte{"server.properties": []byte("motd=a"), "whitelist.json": []byte("[]")},
	}
	compare := Side{
		ID:      "b",
		Hashes:  map[string]string{"server.properties": "h9", "bukkit.yml": "k"},
		Content: map[string][]byte{"server.properties": []byte("motd=b"), "bukkit.yml": []byte("x: 1")},
	}

	res := Compute(base, compare)
	want := []Change{
		{Path: "bukkit.yml", Status: Added, NewHash: "k", NewContent: "x: 1"},
		{Path: "server.properties", Status: Modified, OldHash: "h1", NewHash: "h9", OldContent: "motd=a", NewContent: "motd=b"},
		{Path: "whitelist.json", Status: Deleted, OldHash: "w", OldContent: "[]"},
	}
	if len(res.Changes) != len(want) {
		t.Fatalf("changes = %+v", res.Changes)
	}
	for i := range want {
		if res.Changes[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, res.Changes[i], want[i])
		}
	}
	if res.Summary != (Summary{Added: 1, Modified: 1, Deleted: 1}) {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.BaseID != "a" || res.CompareID != "b" {
		t.Errorf("ids = %s, %s", res.BaseID, res.CompareID)
	}
}

func TestCompute_WithoutContent(t *testing.T) {
	t.Parallel()

	res := Compute(
		Side{ID: "a", Hashes: map[string]string{"worlds/level.dat": "1"}},
		Side{ID: "b", Hashes: map[string]string{"worlds/level.dat": "2"}},
	)
	if len(res.Changes) != 1 || res.Changes[0].OldContent != "" || res.Changes[0].NewContent != "" {
		t.Errorf("changes = %+v", res.Changes)
	}
}
