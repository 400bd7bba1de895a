// Package rtc wraps the WebRTC peer connection and Opus codec used by the
// media plane. The downlink is a single Opus track at 48 kHz; the uplink is
// whatever audio track the browser offers.
package rtc

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/echohall/voicegate/pkg/audio"
)

// Encoder wraps a gopus Opus encoder for the mono downlink track.
type Encoder struct {
	enc *gopus.Encoder
}

// NewEncoder creates an Opus encoder for 48 kHz mono frames.
func NewEncoder() (*Encoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, 1, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("rtc: create opus encoder: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// Encode encodes one 20 ms mono frame (exactly audio.FrameSamples samples)
// into an Opus packet.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	packet, err := e.enc.Encode(pcm, audio.FrameSamples, audio.FrameBytes)
	if err != nil {
		return nil, fmt.Errorf("rtc: opus encode: %w", err)
	}
	return packet, nil
}

// Decoder wraps a gopus Opus decoder for one inbound track. Each track gets
// its own decoder to keep decoder state consistent across frames.
type Decoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewDecoder creates an Opus decoder for 48 kHz audio with the channel count
// negotiated for the inbound track.
func NewDecoder(channels int) (*Decoder, error) {
	if channels <= 0 {
		channels = 1
	}
	dec, err := gopus.NewDecoder(audio.SampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("rtc: create opus decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

// Channels reports the decoder's channel count.
func (d *Decoder) Channels() int { return d.channels }

// Decode decodes an Opus packet into interleaved int16 PCM samples.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(packet, audio.FrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("rtc: opus decode: %w", err)
	}
	return pcm, nil
}
