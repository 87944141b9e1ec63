package identity

import (
	"testing"

	"github.com/weftmesh/weft/internal/domain"
)

// recordingResolver counts how many times Resolve is called per URN, so
// tests can tell whether a guard actually short-circuited a repeat lookup.
type recordingResolver struct {
	calls map[string]int
	ents  MapResolver[testInfo]
}

func (r *recordingResolver) Resolve(urn string) (*Entity[testInfo], error) {
	r.calls[urn]++
	return r.ents.Resolve(urn)
}

func TestGuardCyclesCachesRepeatResolve(t *testing.T) {
	sk := mustKey(t)
	certified := buildSignedEntity(t, 1, "", []domain.PrivateKey{sk})
	inner := &recordingResolver{calls: map[string]int{}, ents: MapResolver[testInfo]{"rad:git:certifier": certified}}
	guarded := GuardCycles[testInfo](inner)

	first, err := guarded.Resolve("rad:git:certifier")
	if err != nil {
		t.Fatalf("first Resolve = %v, want nil", err)
	}
	if inner.calls["rad:git:certifier"] != 1 {
		t.Fatalf("inner.calls = %d, want 1", inner.calls["rad:git:certifier"])
	}

	// A second, non-cyclic resolution of the same URN within one pass — e.g.
	// two different signatures on the same entity both attributed to this
	// certifier — must be served from cache, not rejected.
	second, err := guarded.Resolve("rad:git:certifier")
	if err != nil {
		t.Fatalf("second Resolve of the same URN = %v, want nil (served from cache)", err)
	}
	if second != first {
		t.Fatalf("second Resolve = %p, want the same cached entity as the first (%p)", second, first)
	}
	if inner.calls["rad:git:certifier"] != 1 {
		t.Fatalf("inner.calls after repeat = %d, want still 1 (guard must serve from cache)", inner.calls["rad:git:certifier"])
	}
}

// selfReferencingResolver resolves any URN by immediately resolving the same
// URN again through the guard wrapping it, simulating a certifier chain that
// loops back on itself mid-resolution.
type selfReferencingResolver struct {
	guard *Resolver[testInfo]
}

func (r *selfReferencingResolver) Resolve(urn string) (*Entity[testInfo], error) {
	return (*r.guard).Resolve(urn)
}

func TestGuardCyclesRejectsTrueInFlightCycle(t *testing.T) {
	self := &selfReferencingResolver{}
	var guard Resolver[testInfo] = GuardCycles[testInfo](self)
	self.guard = &guard

	if _, err := guard.Resolve("rad:git:certifier"); err == nil {
		t.Fatal("Resolve of a self-referencing (in-flight) URN = nil error, want cycle rejection")
	}
}

func TestCheckValidityWrapsResolverWithFreshGuardPerCall(t *testing.T) {
	sk1, sk2 := mustKey(t), mustKey(t)
	data := EntityData[testInfo]{
		Name:     "acme",
		Revision: 1,
		Keys:     []domain.PublicKey{sk1.Public(), sk2.Public()},
	}
	for _, sk := range []domain.PrivateKey{sk1, sk2} {
		if err := Sign(&data, sk, domain.OwnedKeySignatory()); err != nil {
			t.Fatalf("Sign: %v", err)
		}
	}
	ent, err := FromData(data)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}

	resolver := MapResolver[testInfo]{}
	// CheckValidity must not carry guard state across separate calls: an
	// owned-key-only entity never resolves anything, but repeated calls
	// against the same resolver value must each succeed independently.
	if err := CheckValidity(ent, resolver); err != nil {
		t.Fatalf("CheckValidity (first call) = %v, want nil", err)
	}
	if err := CheckValidity(ent, resolver); err != nil {
		t.Fatalf("CheckValidity (second call, same resolver) = %v, want nil", err)
	}
}
