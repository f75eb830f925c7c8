package signaling

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestParseEnvelopeAcceptsWellFormedMessages(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		typ  MessageType
	}{
		{"create room", `{"type":"create-room","roomId":"ROOM1"}`, TypeCreateRoom},
		{"join room", `{"type":"join-room","roomId":"ROOM1"}`, TypeJoinRoom},
		{"offer", `{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`, TypeOffer},
		{"answer", `{"type":"answer","sdp":{"type":"answer","sdp":"v=0"}}`, TypeAnswer},
		{"ice candidate", `{"type":"ice-candidate","candidate":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 3478 typ host"}}`, TypeICECandidate},
		{"viewer connected", `{"type":"viewer-connected"}`, TypeViewerConnected},
		{"viewer connected with echoed room", `{"type":"viewer-connected","roomId":"ROOM1"}`, TypeViewerConnected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tc.raw))
			if err != nil {
				t.Fatalf("ParseEnvelope(%s): %v", tc.raw, err)
			}
			if env.Type != tc.typ {
				t.Fatalf("type=%q, want %q", env.Type, tc.typ)
			}
		})
	}
}

func TestParseEnvelopeRejectsMalformedMessages(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `create-room ROOM1`},
		{"trailing data", `{"type":"create-room","roomId":"R"}{"type":"join-room","roomId":"R"}`},
		{"unknown field", `{"type":"create-room","roomId":"R","admin":true}`},
		{"create room without roomId", `{"type":"create-room"}`},
		{"join room without roomId", `{"type":"join-room"}`},
		{"create room with sdp", `{"type":"create-room","roomId":"R","sdp":{"type":"offer","sdp":"v=0"}}`},
		{"offer without sdp", `{"type":"offer"}`},
		{"offer with answer sdp", `{"type":"offer","sdp":{"type":"answer","sdp":"v=0"}}`},
		{"offer with empty sdp body", `{"type":"offer","sdp":{"type":"offer","sdp":""}}`},
		{"offer with candidate", `{"type":"offer","sdp":{"type":"offer","sdp":"v=0"},"candidate":{"candidate":"x"}}`},
		{"ice candidate without candidate", `{"type":"ice-candidate"}`},
		{"ice candidate with sdp", `{"type":"ice-candidate","candidate":{"candidate":"x"},"sdp":{"type":"offer","sdp":"v=0"}}`},
		{"viewer connected with sdp", `{"type":"viewer-connected","sdp":{"type":"offer","sdp":"v=0"}}`},
		{"spoofed from", `{"type":"offer","sdp":{"type":"offer","sdp":"v=0"},"from":"ATTACKER1"}`},
		{"spoofed clientId", `{"type":"create-room","roomId":"R","clientId":"FORGED111"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(tc.raw)); err == nil {
				t.Fatalf("ParseEnvelope(%s) accepted, want error", tc.raw)
			}
		})
	}
}

func TestParseEnvelopeUnknownType(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":"subscribe","roomId":"R"}`))
	if !errors.Is(err, errUnknownMessageType) {
		t.Fatalf("err=%v, want errUnknownMessageType", err)
	}
}

func TestSDPPionConversion(t *testing.T) {
	in := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	out, err := SDPFromPion(in).ToPion()
	if err != nil {
		t.Fatalf("ToPion: %v", err)
	}
	if out != in {
		t.Fatalf("round trip=%+v, want %+v", out, in)
	}

	if _, err := (SDP{Type: "rollback", SDP: "v=0"}).ToPion(); err == nil {
		t.Fatal("rollback accepted, want error")
	}
}

func TestCandidatePionConversion(t *testing.T) {
	mid := "0"
	in := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 1 typ host", SDPMid: &mid}
	out := CandidateFromPion(in).ToPion()
	if out.Candidate != in.Candidate || out.SDPMid == nil || *out.SDPMid != mid {
		t.Fatalf("round trip=%+v, want %+v", out, in)
	}
}
