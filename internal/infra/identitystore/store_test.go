package identitystore

import (
	"path/filepath"
	"testing"

	"github.com/weftmesh/weft/internal/domain"
	"github.com/weftmesh/weft/internal/infra/identity"
	"github.com/weftmesh/weft/internal/infra/refstore"
)

type testInfo struct {
	Description string `json:"description"`
}

func buildEntity(t *testing.T) *identity.Entity[testInfo] {
	t.Helper()
	sk, err := domain.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	data := identity.EntityData[testInfo]{
		Name:     "acme",
		Revision: 1,
		Keys:     []domain.PublicKey{sk.Public()},
		Info:     testInfo{Description: "test entity"},
	}
	if err := identity.Sign(&data, sk, domain.OwnedKeySignatory()); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ent, err := identity.FromData(data)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	return ent
}

func openTestStore(t *testing.T) *Store[testInfo] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identities.db")
	s, err := Open[testInfo](path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ent := buildEntity(t)

	if err := s.Put("rad:git:abc", ent); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("rad:git:abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Hash() != ent.Hash() || got.Revision() != ent.Revision() {
		t.Fatalf("Get() = %+v, want a round trip of %+v", got, ent)
	}
}

func TestGetMissingURNFails(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("rad:git:missing"); err != identity.ErrResolutionFailed {
		t.Fatalf("Get(missing) = %v, want ErrResolutionFailed", err)
	}
}

func TestResolveDelegatesToGet(t *testing.T) {
	s := openTestStore(t)
	ent := buildEntity(t)
	if err := s.Put("rad:git:abc", ent); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Resolve("rad:git:abc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Hash() != ent.Hash() {
		t.Fatalf("Resolve().Hash() = %q, want %q", got.Hash(), ent.Hash())
	}
}

func TestPutOverwritesAndRefsReflectLatestURN(t *testing.T) {
	s := openTestStore(t)
	first := buildEntity(t)
	if err := s.Put("rad:git:abc", first); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var refs []refstore.Reference
	for ref, err := range s.Refs().Iter("refs/identities/*") {
		if err != nil {
			t.Fatalf("Refs().Iter(): %v", err)
		}
		refs = append(refs, ref)
	}
	if len(refs) != 1 || refs[0].Name != "refs/identities/rad:git:abc" || refs[0].Hash != first.Hash() {
		t.Fatalf("Refs().Iter() = %+v, want one ref for rad:git:abc naming %s", refs, first.Hash())
	}

	handle, ok := s.Refs().Reference("refs/identities/rad:git:abc")
	if !ok {
		t.Fatalf("Refs().Reference() ok = false, want true")
	}
	if string(handle) != first.Hash() {
		t.Fatalf("Refs().Reference() = %q, want %q", handle, first.Hash())
	}
}
