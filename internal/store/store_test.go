package store

import "testing"

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	rec := Record{Name: "notes", Kind: "register", Dump: []byte(`{"a":1}`), UpdatedAt: 100}
	if err := s.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("notes")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != rec.Kind || string(got.Dump) != string(rec.Dump) || got.UpdatedAt != rec.UpdatedAt {
		t.Fatalf("Get returned %+v, want %+v", got, rec)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_, err = s.Get("missing")
	if _, ok := err.(ErrNotFound); !ok {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestPutUpserts(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Put(Record{Name: "x", Kind: "set", Dump: []byte("1"), UpdatedAt: 1})
	s.Put(Record{Name: "x", Kind: "set", Dump: []byte("2"), UpdatedAt: 2})

	got, err := s.Get("x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Dump) != "2" || got.UpdatedAt != 2 {
		t.Fatalf("Put did not upsert: got %+v", got)
	}
}

func TestListFiltersByKind(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Put(Record{Name: "r1", Kind: "register", Dump: []byte("1"), UpdatedAt: 1})
	s.Put(Record{Name: "s1", Kind: "set", Dump: []byte("1"), UpdatedAt: 2})
	s.Put(Record{Name: "r2", Kind: "register", Dump: []byte("1"), UpdatedAt: 3})

	regs, err := s.List("register")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("len(regs) = %d, want 2", len(regs))
	}

	all, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Put(Record{Name: "x", Kind: "list", Dump: []byte("1"), UpdatedAt: 1})
	if err := s.Delete("x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("x"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get("x"); err == nil {
		t.Fatal("expected Get to fail after Delete")
	}
}
