package domain

import "testing"

type peerTestAddr string

func (a peerTestAddr) String() string { return string(a) }

func TestSequenceFailsWithoutAdvertisement(t *testing.T) {
	p := PartialPeerInfo[peerTestAddr]{PeerId: "a"}
	if _, ok := p.Sequence(); ok {
		t.Fatalf("Sequence() on an unadvertised peer = true, want false")
	}
}

func TestSequenceSucceedsAndCopiesSeenAddrs(t *testing.T) {
	p := PartialPeerInfo[peerTestAddr]{
		PeerId:     "a",
		Advertised: &PeerAdvertisement[peerTestAddr]{Addrs: []peerTestAddr{"1.2.3.4:9"}},
		SeenAddrs:  map[peerTestAddr]struct{}{"5.6.7.8:9": {}},
	}
	info, ok := p.Sequence()
	if !ok {
		t.Fatalf("Sequence() on an advertised peer = false, want true")
	}
	if info.PeerId != "a" || len(info.AdvertisedInfo.Addrs) != 1 {
		t.Fatalf("Sequence() = %+v, want a populated PeerInfo", info)
	}
	if _, ok := info.SeenAddrs["5.6.7.8:9"]; !ok {
		t.Fatalf("Sequence() dropped a seen address")
	}

	// Mutating the source's SeenAddrs after Sequence must not affect the copy.
	p.SeenAddrs["9.9.9.9:9"] = struct{}{}
	if _, ok := info.SeenAddrs["9.9.9.9:9"]; ok {
		t.Fatalf("Sequence() aliased the source's SeenAddrs map instead of copying it")
	}
}

func TestPartialRoundTripsThroughSequence(t *testing.T) {
	orig := PartialPeerInfo[peerTestAddr]{
		PeerId:     "a",
		Advertised: &PeerAdvertisement[peerTestAddr]{Addrs: []peerTestAddr{"1.2.3.4:9"}},
	}
	info, ok := orig.Sequence()
	if !ok {
		t.Fatalf("Sequence() = false, want true")
	}
	back := info.Partial()
	if back.PeerId != orig.PeerId || back.Advertised == nil || len(back.Advertised.Addrs) != 1 {
		t.Fatalf("Partial() = %+v, want it to mirror the original advertisement", back)
	}
}

func TestAddSeenInitializesMapOnNilReceiver(t *testing.T) {
	var info PeerInfo[peerTestAddr]
	info.AddSeen("1.2.3.4:9")
	if _, ok := info.SeenAddrs["1.2.3.4:9"]; !ok {
		t.Fatalf("AddSeen() on a nil SeenAddrs map did not record the address")
	}
}

func TestPeerIdLessIsLexicographic(t *testing.T) {
	if !PeerId("a").Less("b") {
		t.Fatalf(`PeerId("a").Less("b") = false, want true`)
	}
	if PeerId("b").Less("a") {
		t.Fatalf(`PeerId("b").Less("a") = true, want false`)
	}
}
