package object

import "testing"

func TestManagerInsertAdvancesNextID(t *testing.T) {
	m := NewManager()
	if m.NextID() != 1 {
		t.Fatalf("next id = %d, want 1", m.NextID())
	}
	m.Insert(&Object{ID: 5, Kind: "card"})
	if m.NextID() != 6 {
		t.Fatalf("next id = %d, want 6", m.NextID())
	}
	m.Insert(&Object{ID: 2, Kind: "card"})
	if m.NextID() != 6 {
		t.Fatalf("next id = %d, want 6", m.NextID())
	}
	if got := m.IDs(); len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Fatalf("ids = %v", got)
	}
}

func TestManagerInsertCopiesObject(t *testing.T) {
	m := NewManager()
	obj := &Object{ID: 1, Kind: "player", Props: map[Property]any{"life": 20}}
	m.Insert(obj)
	obj.Props["life"] = 1
	if got := m.Int(1, "life"); got != 20 {
		t.Fatalf("life = %d, want 20", got)
	}
}

func TestManagerCloneIsIndependent(t *testing.T) {
	m := NewManager()
	m.Insert(&Object{ID: 1, Kind: "player", Props: map[Property]any{"life": 20, "name": "ana"}})
	clone := m.Clone()
	if !m.Equal(clone) {
		t.Fatalf("clone differs: %s", m.Diff(clone))
	}

	clone.SetValue(1, "life", 3)
	if m.Int(1, "life") != 20 {
		t.Fatal("mutating clone changed original")
	}
	if m.Equal(clone) {
		t.Fatal("expected managers to differ")
	}
	if m.Diff(clone) == "" {
		t.Fatal("expected a diff")
	}
}

func TestManagerEqualComparesAllocator(t *testing.T) {
	a := NewManager()
	b := NewManager()
	b.SetNextID(7)
	if a.Equal(b) {
		t.Fatal("expected allocator difference to matter")
	}
}

func TestManagerFindAndAccessors(t *testing.T) {
	m := NewManager()
	m.Insert(&Object{ID: 1, Kind: "player", Props: map[Property]any{"name": "ana"}})
	m.Insert(&Object{ID: 2, Kind: "card"})
	m.Insert(&Object{ID: 3, Kind: "player", Props: map[Property]any{"name": "bo"}})

	if got := m.Find("player"); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("find = %v", got)
	}
	if m.String(3, "name") != "bo" {
		t.Fatalf("name = %q", m.String(3, "name"))
	}
	if m.Int(2, "missing") != 0 {
		t.Fatal("expected zero for missing property")
	}
	m.ClearValue(1, "name")
	if _, ok := m.Value(1, "name"); ok {
		t.Fatal("expected property cleared")
	}
	if _, ok := m.Remove(2); !ok || m.Len() != 2 {
		t.Fatalf("remove failed, len=%d", m.Len())
	}
}

func TestSetValueOnMissingObjectPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewManager().SetValue(9, "life", 1)
}
