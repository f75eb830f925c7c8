package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

// MessageType tags every envelope on the wire.
type MessageType string

// Inbound (client -> relay) message types.
const (
	TypeCreateRoom      MessageType = "create-room"
	TypeJoinRoom        MessageType = "join-room"
	TypeOffer           MessageType = "offer"
	TypeAnswer          MessageType = "answer"
	TypeICECandidate    MessageType = "ice-candidate"
	TypeViewerConnected MessageType = "viewer-connected"
)

// Outbound (relay -> client) message types. Offer/answer/candidate envelopes
// are re-emitted with their inbound type preserved and `from` attached.
const (
	TypeConnected        MessageType = "connected"
	TypeRoomCreated      MessageType = "room-created"
	TypeRoomJoined       MessageType = "room-joined"
	TypeHostDisconnected MessageType = "host-disconnected"
	TypeError            MessageType = "error"
)

var errUnknownMessageType = errors.New("unknown message type")

// SDP is a JSON-friendly session description. The relay forwards it verbatim;
// conversion to the pion type exists for ingress shape validation and for
// clients of this package that terminate WebRTC themselves.
type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SDPFromPion(desc webrtc.SessionDescription) SDP {
	return SDP{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (s SDP) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	if s.SDP == "" {
		return webrtc.SessionDescription{}, errors.New("missing sdp body")
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// Candidate mirrors the browser's RTCIceCandidateInit shape.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Envelope is the single wire message shape, inbound and outbound. Which
// fields may be set depends on Type; inbound envelopes are checked by
// validate so a client can never smuggle extra fields through the relay.
type Envelope struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	SDP       *SDP        `json:"sdp,omitempty"`
	Candidate *Candidate  `json:"candidate,omitempty"`

	// From is attached by the router on relayed envelopes; never accepted
	// from clients.
	From string `json:"from,omitempty"`

	ClientID string `json:"clientId,omitempty"`
	HostID   string `json:"hostId,omitempty"`
	ViewerID string `json:"viewerId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ParseEnvelope strictly decodes an inbound client message: unknown fields,
// trailing data, and fields that do not belong to the declared type are all
// rejected.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var e Envelope
	if err := dec.Decode(&e); err != nil {
		return Envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, errors.New("unexpected trailing data")
	}
	if err := e.validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func (e Envelope) validate() error {
	if e.From != "" || e.ClientID != "" || e.HostID != "" || e.ViewerID != "" || e.Message != "" {
		return fmt.Errorf("%s message has server-only fields", e.Type)
	}

	switch e.Type {
	case TypeCreateRoom, TypeJoinRoom:
		if e.RoomID == "" {
			return fmt.Errorf("%s message missing roomId", e.Type)
		}
		if e.SDP != nil || e.Candidate != nil {
			return fmt.Errorf("%s message has unexpected payload", e.Type)
		}
	case TypeOffer, TypeAnswer:
		if e.SDP == nil {
			return fmt.Errorf("%s message missing sdp", e.Type)
		}
		if e.SDP.Type != string(e.Type) {
			return fmt.Errorf("%s message has sdp.type=%q", e.Type, e.SDP.Type)
		}
		if _, err := e.SDP.ToPion(); err != nil {
			return fmt.Errorf("%s message: %w", e.Type, err)
		}
		if e.Candidate != nil {
			return fmt.Errorf("%s message has unexpected candidate", e.Type)
		}
	case TypeICECandidate:
		if e.Candidate == nil {
			return fmt.Errorf("%s message missing candidate", e.Type)
		}
		if e.SDP != nil {
			return fmt.Errorf("%s message has unexpected sdp", e.Type)
		}
	case TypeViewerConnected:
		// Presence announcement; roomId is tolerated (some clients echo it)
		// but membership is resolved from the registry, never trusted.
		if e.SDP != nil || e.Candidate != nil {
			return fmt.Errorf("%s message has unexpected payload", e.Type)
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownMessageType, e.Type)
	}
	return nil
}
