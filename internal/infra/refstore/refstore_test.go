package refstore

import "testing"

func collect(t *testing.T, s *MemStore, pattern string) ([]Reference, []error) {
	t.Helper()
	var refs []Reference
	var errs []error
	for ref, err := range s.Iter(pattern) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errs
}

func TestIterMatchesAndSorts(t *testing.T) {
	s := NewMemStore()
	s.Put(Reference{Name: "refs/identities/b", Hash: "hash-b"})
	s.Put(Reference{Name: "refs/identities/a", Hash: "hash-a"})
	s.Put(Reference{Name: "refs/heads/main", Hash: "hash-main"})

	refs, errs := collect(t, s, "refs/identities/*")
	if len(errs) != 0 {
		t.Fatalf("Iter errors = %+v, want none", errs)
	}
	if len(refs) != 2 || refs[0].Name != "refs/identities/a" || refs[1].Name != "refs/identities/b" {
		t.Fatalf("Iter() = %+v, want [a b] sorted by name", refs)
	}
}

func TestIterMalformedPatternYieldsErrorPerEntryAndContinues(t *testing.T) {
	s := NewMemStore()
	s.Put(Reference{Name: "refs/identities/a", Hash: "hash-a"})
	s.Put(Reference{Name: "refs/identities/b", Hash: "hash-b"})

	refs, errs := collect(t, s, "[")
	if len(refs) != 0 {
		t.Fatalf("Iter(malformed pattern) refs = %+v, want none", refs)
	}
	if len(errs) != 2 {
		t.Fatalf("Iter(malformed pattern) errs = %d, want one per entry (short-circuiting only that entry)", len(errs))
	}
}

func TestReferenceResolvesHash(t *testing.T) {
	s := NewMemStore()
	s.Put(Reference{Name: "refs/identities/a", Hash: "hash-a"})

	h, ok := s.Reference("refs/identities/a")
	if !ok {
		t.Fatalf("Reference() ok = false, want true")
	}
	if h != "hash-a" {
		t.Fatalf("Reference() = %q, want %q", h, "hash-a")
	}
}

func TestReferenceMissingRefReportsNotFound(t *testing.T) {
	s := NewMemStore()
	if _, ok := s.Reference("refs/identities/missing"); ok {
		t.Fatalf("Reference(missing) ok = true, want false")
	}
}

func TestPeelToCommitWrapsHandle(t *testing.T) {
	s := NewMemStore()
	s.Put(Reference{Name: "refs/identities/a", Hash: "hash-a"})

	h, ok := s.Reference("refs/identities/a")
	if !ok {
		t.Fatalf("Reference() ok = false, want true")
	}
	commit, err := h.PeelToCommit()
	if err != nil {
		t.Fatalf("PeelToCommit: %v", err)
	}
	if commit != "hash-a" {
		t.Fatalf("PeelToCommit() = %q, want %q", commit, "hash-a")
	}
}

func TestPeelToCommitRejectsEmptyHandle(t *testing.T) {
	if _, err := Handle("").PeelToCommit(); err == nil {
		t.Fatalf("PeelToCommit() on empty handle = nil error, want one")
	}
}

func TestIterFiltersToConventionalIdentityNamespace(t *testing.T) {
	s := NewMemStore()
	s.Put(Reference{Name: "refs/identities/a", Hash: "hash-a"})
	s.Put(Reference{Name: "refs/heads/main", Hash: "hash-main"})

	refs, errs := collect(t, s, "refs/identities/*")
	if len(errs) != 0 {
		t.Fatalf("Iter errors = %+v, want none", errs)
	}
	if len(refs) != 1 || refs[0].Name != "refs/identities/a" {
		t.Fatalf("Iter() = %+v, want only refs/identities/a", refs)
	}
}

func TestPutOverwritesExistingReference(t *testing.T) {
	s := NewMemStore()
	s.Put(Reference{Name: "refs/identities/a", Hash: "hash-old"})
	s.Put(Reference{Name: "refs/identities/a", Hash: "hash-new"})

	h, ok := s.Reference("refs/identities/a")
	if !ok {
		t.Fatalf("Reference() ok = false, want true")
	}
	if h != "hash-new" {
		t.Fatalf("Reference() after overwrite = %q, want %q", h, "hash-new")
	}
}
