package protocol

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Valid(t *testing.T) {
	data := []byte(`{"type":"offer","peerId":"a","description":{"type":"offer","sdp":"v=0"}}`)
	m, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindOffer, m.Type)
	assert.Equal(t, "a", string(m.PeerID))
	require.NotNil(t, m.Description)
	assert.Equal(t, webrtc.SDPTypeOffer, m.Description.Type)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
	}{
		"bad json":               {`{"type":`, ErrMalformed},
		"unknown kind":           {`{"type":"hello"}`, ErrUnknownKind},
		"offer without sdp":      {`{"type":"offer","peerId":"a"}`, ErrMalformed},
		"answer without peer":    {`{"type":"answer","description":{"type":"answer","sdp":"v=0"}}`, ErrMalformed},
		"candidate without body": {`{"type":"candidate","peerId":"a"}`, ErrMalformed},
		"peer-left without peer": {`{"type":"peer-left"}`, ErrMalformed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEncode_CandidateShape(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	b, err := Encode(Candidate("v1", webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"candidate","peerId":"v1","candidate":{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0,"usernameFragment":null}}`, string(b))
}

func TestKind_Routed(t *testing.T) {
	assert.True(t, KindOffer.Routed())
	assert.True(t, KindAnswer.Routed())
	assert.True(t, KindCandidate.Routed())
	assert.False(t, KindViewerJoined.Routed())
	assert.False(t, KindPeerLeft.Routed())
	assert.False(t, KindWatcher.Routed())
}
