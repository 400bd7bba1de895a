package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/echohall/voicegate/pkg/audio"
)

// ICEServer mirrors the RTCIceServer dictionary carried in the signalling
// payload (hello_ack) and in the ICE_SERVERS_JSON environment override.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// TrackHandler is invoked once per inbound audio track, on its own goroutine.
type TrackHandler func(track *webrtc.TrackRemote)

// Peer owns one WebRTC peer connection with a single outbound Opus track.
// Trickle ICE is not used: HandleOffer waits for candidate gathering to
// complete so the answer SDP carries every candidate.
type Peer struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
}

// NewPeer creates a peer connection with the given ICE servers and installs
// the outbound track. onTrack is called for each inbound audio track.
func NewPeer(servers []ICEServer, onTrack TrackHandler) (*Peer, error) {
	cfg := webrtc.Configuration{}
	for _, s := range servers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("rtc: create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: audio.SampleRate,
			Channels:  2,
		},
		"audio", "voicegate",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("rtc: create outbound track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("rtc: add outbound track: %w", err)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("peer connection state changed", "state", state.String())
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Debug("ice connection state changed", "state", state.String())
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Info("inbound track",
			"kind", tr.Kind().String(),
			"codec", tr.Codec().MimeType,
			"channels", tr.Codec().Channels,
		)
		if tr.Kind() != webrtc.RTPCodecTypeAudio || onTrack == nil {
			return
		}
		go onTrack(tr)
	})

	return &Peer{pc: pc, track: track}, nil
}

// HandleOffer applies the browser's offer SDP, creates an answer, and blocks
// until ICE gathering completes so the returned SDP embeds all candidates.
func (p *Peer) HandleOffer(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("rtc: set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("rtc: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("rtc: set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", fmt.Errorf("rtc: ice gathering interrupted: %w", ctx.Err())
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("rtc: no local description after gathering")
	}
	return local.SDP, nil
}

// WriteSample sends one encoded Opus frame on the outbound track.
func (p *Peer) WriteSample(packet []byte) error {
	if err := p.track.WriteSample(media.Sample{Data: packet, Duration: audio.FrameDuration}); err != nil {
		return fmt.Errorf("rtc: write sample: %w", err)
	}
	return nil
}

// Close tears down the peer connection.
func (p *Peer) Close() error {
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("rtc: close peer connection: %w", err)
	}
	return nil
}
