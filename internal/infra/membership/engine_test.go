package membership

import (
	"math/rand"
	"testing"

	"github.com/weftmesh/weft/internal/domain"
)

func newTestEngine(id string, params Params) *Engine[testAddr] {
	return NewEngine[testAddr](domain.PeerId(id), params, rand.New(rand.NewSource(7)))
}

func defaultTestParams() Params {
	return Params{
		MaxActive:               3,
		MaxPassive:              10,
		ActiveRandomWalkLength:  2,
		PassiveRandomWalkLength: 1,
		ShuffleSampleSize:       4,
		ShuffleTTL:              2,
	}
}

func TestHelloEmptyViewJoins(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	self := domain.PartialPeerInfo[testAddr]{PeerId: "local"}
	msg := e.Hello(self)
	if msg.Kind != MsgJoin {
		t.Fatalf("Hello() on empty view = %v, want MsgJoin", msg.Kind)
	}
}

func TestHelloPassiveOnlyNeedsFriends(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	e.view.AddPassive("x", peerInfo("x", "addr-x"))
	msg := e.Hello(domain.PartialPeerInfo[testAddr]{PeerId: "local"})
	if msg.Kind != MsgNeighbour || msg.NeedFriends == nil || !*msg.NeedFriends {
		t.Fatalf("Hello() with only passive peers = %+v, want Neighbour{NeedFriends:true}", msg)
	}
}

func TestApplyJoinPromotesAndForwards(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	e.view.AddActive("existing", sequencedInfo("existing", "addr-existing"))

	joiner := sequencedInfo("joiner", "addr-joiner")
	tnt, err := e.Apply("joiner", "addr-joiner", Message[testAddr]{Kind: MsgJoin, Sender: joiner})
	if err != nil {
		t.Fatalf("Apply(Join) returned error: %v", err)
	}

	if !e.IsActive("joiner") {
		t.Fatalf("expected joiner to become active")
	}
	var sawForward bool
	for _, tick := range tnt.Ticks {
		if tick.Kind == TickTry && tick.Peer == "existing" && tick.Message.Kind == MsgForwardJoin {
			sawForward = true
		}
	}
	if !sawForward {
		t.Fatalf("Apply(Join) ticks = %+v, want a ForwardJoin to the existing active peer", tnt.Ticks)
	}
}

func TestApplyJoinWhileConnectedFails(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	e.view.AddActive("joiner", sequencedInfo("joiner", "addr-joiner"))

	tnt, err := e.Apply("joiner", "addr-joiner", Message[testAddr]{Kind: MsgJoin, Sender: sequencedInfo("joiner", "addr-joiner")})
	if err != ErrJoinWhileConnected {
		t.Fatalf("Apply(Join while connected) err = %v, want ErrJoinWhileConnected", err)
	}
	if len(tnt.Transitions) != 0 || len(tnt.Ticks) != 0 {
		t.Fatalf("Apply(Join while connected) = %+v, want a no-op TnT alongside the error", tnt)
	}
}

func TestApplyForwardJoinConnectsWhenRoomAvailable(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	joiner := sequencedInfo("joiner", "addr-joiner")
	tnt, err := e.Apply("relay", "addr-relay", Message[testAddr]{
		Kind:   MsgForwardJoin,
		Sender: joiner,
		TTL:    2,
	})
	if err != nil {
		t.Fatalf("Apply(ForwardJoin) returned error: %v", err)
	}
	if len(tnt.Ticks) != 1 || tnt.Ticks[0].Kind != TickConnect || tnt.Ticks[0].Peer != "joiner" {
		t.Fatalf("Apply(ForwardJoin, room available) = %+v, want a Connect tick to joiner", tnt.Ticks)
	}
}

func TestApplyForwardJoinAtZeroTTLAddsPassive(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	for i := 0; i < e.params.MaxActive; i++ {
		id := domain.PeerId(rune('a' + i))
		e.view.AddActive(id, sequencedInfo(string(id), testAddr(id)))
	}
	joiner := sequencedInfo("joiner", "addr-joiner")
	tnt, err := e.Apply("relay", "addr-relay", Message[testAddr]{
		Kind:   MsgForwardJoin,
		Sender: joiner,
		TTL:    0,
	})
	if err != nil {
		t.Fatalf("Apply(ForwardJoin ttl=0) returned error: %v", err)
	}
	if !e.Known("joiner") {
		t.Fatalf("expected joiner to be known (passive) after ttl=0 forward join with no room")
	}
	_ = tnt
}

func TestApplyForwardJoinAtZeroTTLDropsUnsequenced(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	for i := 0; i < e.params.MaxActive; i++ {
		id := domain.PeerId(rune('a' + i))
		e.view.AddActive(id, sequencedInfo(string(id), testAddr(id)))
	}
	joiner := unsequencedInfo("joiner")
	tnt, err := e.Apply("relay", "addr-relay", Message[testAddr]{
		Kind:   MsgForwardJoin,
		Sender: joiner,
		TTL:    0,
	})
	if err != nil {
		t.Fatalf("Apply(ForwardJoin ttl=0) returned error: %v", err)
	}
	if e.Known("joiner") {
		t.Fatalf("expected an unsequenced joiner (no advertisement) not to enter the passive set")
	}
	_ = tnt
}

func TestApplyNeighbourNeedFriendsPromotesEvenWhenFull(t *testing.T) {
	params := defaultTestParams()
	params.MaxActive = 1
	e := newTestEngine("local", params)
	e.view.AddActive("existing", sequencedInfo("existing", "addr-existing"))

	needFriends := true
	tnt, err := e.Apply("newcomer", "addr-newcomer", Message[testAddr]{
		Kind:        MsgNeighbour,
		Sender:      sequencedInfo("newcomer", "addr-newcomer"),
		NeedFriends: &needFriends,
	})
	if err != nil {
		t.Fatalf("Apply(Neighbour) returned error: %v", err)
	}
	if !e.IsActive("newcomer") {
		t.Fatalf("expected need_friends Neighbour to be promoted even over a full active set")
	}
	_ = tnt
}

func TestApplyNeighbourWithoutRoomReplies(t *testing.T) {
	params := defaultTestParams()
	params.MaxActive = 1
	e := newTestEngine("local", params)
	e.view.AddActive("existing", sequencedInfo("existing", "addr-existing"))

	needFriends := false
	tnt, err := e.Apply("newcomer", "addr-newcomer", Message[testAddr]{
		Kind:        MsgNeighbour,
		Sender:      sequencedInfo("newcomer", "addr-newcomer"),
		NeedFriends: &needFriends,
	})
	if err != nil {
		t.Fatalf("Apply(Neighbour) returned error: %v", err)
	}
	if e.IsActive("newcomer") {
		t.Fatalf("expected newcomer not to be promoted without room or need_friends")
	}
	if len(tnt.Ticks) != 1 || tnt.Ticks[0].Kind != TickReply || tnt.Ticks[0].Message.Kind != MsgDisconnect {
		t.Fatalf("Apply(Neighbour, no room) = %+v, want a Reply{Disconnect}", tnt.Ticks)
	}
}

func TestApplyDisconnectDemotes(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	e.view.AddActive("peer", sequencedInfo("peer", "addr-peer"))
	tnt, err := e.Apply("peer", "addr-peer", Message[testAddr]{Kind: MsgDisconnect})
	if err != nil {
		t.Fatalf("Apply(Disconnect) returned error: %v", err)
	}
	if e.IsActive("peer") {
		t.Fatalf("expected peer to be demoted after Disconnect")
	}
	if len(tnt.Transitions) != 1 || tnt.Transitions[0].Kind != Demoted {
		t.Fatalf("Apply(Disconnect) transitions = %+v, want a single Demoted", tnt.Transitions)
	}
}

func TestConnectionLostPromotesReplacement(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	e.view.AddActive("a", sequencedInfo("a", "addr-a"))
	e.view.AddPassive("b", peerInfo("b", "addr-b"))

	self := domain.PartialPeerInfo[testAddr]{PeerId: "local"}
	tnt := e.ConnectionLost(self, "a")

	if e.IsActive("a") {
		t.Fatalf("expected a to no longer be active")
	}
	var sawConnect bool
	for _, tick := range tnt.Ticks {
		if tick.Kind == TickConnect && tick.Peer == "b" {
			sawConnect = true
		}
	}
	if !sawConnect {
		t.Fatalf("ConnectionLost ticks = %+v, want a Connect tick to the passive replacement", tnt.Ticks)
	}
}

func TestShuffleNoActivePeersSkips(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	self := domain.PartialPeerInfo[testAddr]{PeerId: "local"}
	if _, ok := e.Shuffle(self); ok {
		t.Fatalf("Shuffle() with no active peers should report false")
	}
}

func TestShuffleTargetsAnActivePeer(t *testing.T) {
	e := newTestEngine("local", defaultTestParams())
	e.view.AddActive("a", sequencedInfo("a", "addr-a"))
	self := domain.PartialPeerInfo[testAddr]{PeerId: "local"}
	tick, ok := e.Shuffle(self)
	if !ok {
		t.Fatalf("Shuffle() with an active peer should succeed")
	}
	if tick.Peer != "a" || tick.Message.Kind != MsgShuffle {
		t.Fatalf("Shuffle() = %+v, want a Shuffle tick targeting the active peer", tick)
	}
}
