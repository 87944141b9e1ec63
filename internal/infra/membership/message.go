package membership

import (
	"encoding/json"
	"fmt"

	"github.com/weftmesh/weft/internal/domain"
)

// MessageKind discriminates the HyParView wire protocol's closed set of
// message variants. Grounded on hpv.rs's rpc::Message, following a
// tagged-struct wire convention.
type MessageKind string

const (
	MsgJoin         MessageKind = "join"
	MsgForwardJoin  MessageKind = "forward_join"
	MsgNeighbour    MessageKind = "neighbour"
	MsgDisconnect   MessageKind = "disconnect"
	MsgShuffle      MessageKind = "shuffle"
	MsgShuffleReply MessageKind = "shuffle_reply"
)

// Message is the HyParView wire message sum type, represented as a single
// tagged struct rather than an interface hierarchy.
//
// Field use by Kind:
//
//	Join:          Sender (the joiner's own info)
//	ForwardJoin:   Sender (the original joiner), TTL
//	Neighbour:     Sender, NeedFriends
//	Disconnect:    (no payload)
//	Shuffle:       Origin, TTL, Sample
//	ShuffleReply:  Sample
type Message[A domain.Addr] struct {
	Kind        MessageKind
	Sender      domain.PartialPeerInfo[A]
	TTL         int
	NeedFriends *bool
	Origin      domain.PeerId
	Sample      []domain.PartialPeerInfo[A]
}

type wirePeerInfo struct {
	PeerID       string   `json:"peer_id"`
	Addrs        []string `json:"addrs,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	SeenAddrs    []string `json:"seen_addrs,omitempty"`
	Advertised   bool     `json:"advertised"`
}

type wireMessage struct {
	Kind        MessageKind    `json:"kind"`
	Sender      *wirePeerInfo  `json:"sender,omitempty"`
	TTL         int            `json:"ttl,omitempty"`
	NeedFriends *bool          `json:"need_friends,omitempty"`
	Origin      string         `json:"origin,omitempty"`
	Sample      []wirePeerInfo `json:"sample,omitempty"`
}

func toWirePeerInfo[A domain.Addr](p domain.PartialPeerInfo[A]) wirePeerInfo {
	w := wirePeerInfo{PeerID: string(p.PeerId)}
	if p.Advertised != nil {
		w.Advertised = true
		for _, a := range p.Advertised.Addrs {
			w.Addrs = append(w.Addrs, a.String())
		}
		w.Capabilities = p.Advertised.Capabilities
	}
	for a := range p.SeenAddrs {
		w.SeenAddrs = append(w.SeenAddrs, a.String())
	}
	return w
}

func fromWirePeerInfo[A domain.Addr](w wirePeerInfo, parseAddr func(string) (A, error)) (domain.PartialPeerInfo[A], error) {
	p := domain.PartialPeerInfo[A]{PeerId: domain.PeerId(w.PeerID)}
	if w.Advertised {
		addrs := make([]A, 0, len(w.Addrs))
		for _, s := range w.Addrs {
			a, err := parseAddr(s)
			if err != nil {
				return domain.PartialPeerInfo[A]{}, fmt.Errorf("membership: decode advertised addr: %w", err)
			}
			addrs = append(addrs, a)
		}
		p.Advertised = &domain.PeerAdvertisement[A]{Addrs: addrs, Capabilities: w.Capabilities}
	}
	if len(w.SeenAddrs) > 0 {
		seen := make(map[A]struct{}, len(w.SeenAddrs))
		for _, s := range w.SeenAddrs {
			a, err := parseAddr(s)
			if err != nil {
				return domain.PartialPeerInfo[A]{}, fmt.Errorf("membership: decode seen addr: %w", err)
			}
			seen[a] = struct{}{}
		}
		p.SeenAddrs = seen
	}
	return p, nil
}

// MarshalMessage encodes m as JSON.
func MarshalMessage[A domain.Addr](m Message[A]) ([]byte, error) {
	w := wireMessage{
		Kind:        m.Kind,
		TTL:         m.TTL,
		NeedFriends: m.NeedFriends,
		Origin:      string(m.Origin),
	}
	if m.Kind == MsgJoin || m.Kind == MsgForwardJoin || m.Kind == MsgNeighbour {
		wp := toWirePeerInfo(m.Sender)
		w.Sender = &wp
	}
	for _, s := range m.Sample {
		w.Sample = append(w.Sample, toWirePeerInfo(s))
	}
	return json.Marshal(w)
}

// UnmarshalMessage decodes data into a Message[A], using parseAddr to
// reconstruct addresses from their wire string form. A factory function is
// required (rather than relying on json.Unmarshaler) because A is a
// generic, caller-defined address type with no default zero-value
// constructor.
func UnmarshalMessage[A domain.Addr](data []byte, parseAddr func(string) (A, error)) (Message[A], error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message[A]{}, fmt.Errorf("membership: decode message: %w", err)
	}
	m := Message[A]{
		Kind:        w.Kind,
		TTL:         w.TTL,
		NeedFriends: w.NeedFriends,
		Origin:      domain.PeerId(w.Origin),
	}
	if w.Sender != nil {
		sender, err := fromWirePeerInfo(*w.Sender, parseAddr)
		if err != nil {
			return Message[A]{}, err
		}
		m.Sender = sender
	}
	for _, s := range w.Sample {
		ps, err := fromWirePeerInfo(s, parseAddr)
		if err != nil {
			return Message[A]{}, err
		}
		m.Sample = append(m.Sample, ps)
	}
	return m, nil
}
