package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/echohall/voicegate/pkg/audio"
	"github.com/echohall/voicegate/pkg/rtc"
)

// ingestTrack receives the browser's mic track until it ends or the session
// closes, normalizing every frame to 48 kHz mono s16le. Receive failures
// mean end-of-stream, not errors.
func (s *Session) ingestTrack(tr *webrtc.TrackRemote) {
	channels := int(tr.Codec().Channels)
	dec, err := rtc.NewDecoder(channels)
	if err != nil {
		s.log.Error("opus decoder init failed", "error", err)
		return
	}

	s.log.Info("inbound track attached",
		"codec", tr.Codec().MimeType,
		"rate", tr.Codec().ClockRate,
		"channels", channels)

	for {
		if s.ctx.Err() != nil {
			return
		}
		packet, _, err := tr.ReadRTP()
		if err != nil {
			s.log.Info("inbound track ended", "error", err)
			return
		}
		if len(packet.Payload) == 0 {
			continue
		}

		samples, err := dec.Decode(packet.Payload)
		if err != nil {
			s.log.Debug("opus decode failed", "error", err)
			continue
		}
		s.appendCapture(samples, dec.Channels())
	}
}

// appendCapture downmixes one decoded frame to mono and appends it to the
// capture buffer when recording is on.
func (s *Session) appendCapture(samples []int16, channels int) {
	mono := audio.FirstChannel(samples, channels)
	data := audio.Int16sToBytes(mono)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loggedFormat {
		s.loggedFormat = true
		lo, hi := sampleRange(mono)
		s.log.Info("first mic frame",
			"format", audio.FormatString(audio.SampleRate, 1),
			"samples", len(mono),
			"channels_in", channels,
			"min", lo, "max", hi)
	}

	if !s.recording {
		return
	}
	if s.captureN+len(data) > maxCaptureBytes {
		return
	}
	s.capture = append(s.capture, data)
	s.captureN += len(data)
}

func sampleRange(samples []int16) (lo, hi int16) {
	for _, v := range samples {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
