// Package session bundles one browser's media state: the WebRTC peer
// connection, the clocked outbound track, the FIFO playback queue, the mic
// capture buffer, and the recording/transcription tasks.
//
// A Session is created by the signalling handler on the first WebRTC offer
// and closed when the socket goes away. Cancellation is the normal teardown
// path for every background task.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/echohall/voicegate/internal/observe"
	"github.com/echohall/voicegate/pkg/audio"
	"github.com/echohall/voicegate/pkg/provider/stt"
	"github.com/echohall/voicegate/pkg/provider/tts"
	"github.com/echohall/voicegate/pkg/rtc"
)

const (
	// sttSampleRate is the rate the STT engine is pinned to; capture is
	// resampled down from 48 kHz before every transcription pass.
	sttSampleRate = 16000

	// defaultTranscribeInterval is the period of the rolling transcriber.
	defaultTranscribeInterval = 5 * time.Second

	// maxCaptureBytes caps the mic buffer at five minutes of 48 kHz mono
	// s16le audio. Frames past the cap are dropped.
	maxCaptureBytes = 5 * 60 * audio.SampleRate * 2
)

// PartialFunc receives transcription results. partial is true for rolling
// mid-utterance passes and false for the final pass.
type PartialFunc func(text string, partial bool)

// Option configures a Session.
type Option func(*Session)

// WithTranscribeInterval overrides the rolling transcriber period.
func WithTranscribeInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.transcribeInterval = d
		}
	}
}

// WithLogger sets the session logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session owns one peer's audio pipelines.
type Session struct {
	peer    *rtc.Peer
	queue   *audio.Queue
	source  *audio.Source
	sttEng  stt.Engine
	ttsEng  tts.Engine
	metrics *observe.Metrics
	log     *slog.Logger

	transcribeInterval time.Duration

	// lifetime of the session; cancelling stops every background task.
	ctx    context.Context
	cancel context.CancelFunc

	pumpOnce sync.Once

	mu        sync.Mutex
	recording bool
	capture   [][]byte
	captureN  int
	onPartial PartialFunc
	// cancels the periodic transcriber, nil when not recording.
	stopTranscriber context.CancelFunc
	loggedFormat    bool
	closed          bool
}

// New creates a Session and its peer connection. The inbound audio track is
// ingested as soon as the browser adds it.
func New(iceServers []rtc.ICEServer, sttEng stt.Engine, ttsEng tts.Engine, opts ...Option) (*Session, error) {
	s := &Session{
		queue:              audio.NewQueue(),
		source:             audio.NewSource(),
		sttEng:             sttEng,
		ttsEng:             ttsEng,
		metrics:            observe.DefaultMetrics(),
		log:                slog.Default(),
		transcribeInterval: defaultTranscribeInterval,
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	peer, err := rtc.NewPeer(iceServers, func(tr *webrtc.TrackRemote) {
		s.ingestTrack(tr)
	})
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("session: create peer: %w", err)
	}
	s.peer = peer

	s.metrics.ActiveSessions.Add(s.ctx, 1)
	return s, nil
}

// HandleOffer answers the browser's SDP offer and starts the outbound frame
// pump. All ICE candidates are gathered before the answer is returned.
func (s *Session) HandleOffer(ctx context.Context, offerSDP string) (string, error) {
	answer, err := s.peer.HandleOffer(ctx, offerSDP)
	if err != nil {
		return "", err
	}
	s.pumpOnce.Do(func() {
		go s.pumpFrames()
	})
	return answer, nil
}

// pumpFrames drives the clocked source: one 20 ms frame per tick, encoded
// to Opus and written to the outbound track until the session closes.
func (s *Session) pumpFrames() {
	enc, err := rtc.NewEncoder()
	if err != nil {
		s.log.Error("opus encoder init failed", "error", err)
		return
	}
	for {
		frame, err := s.source.NextFrame(s.ctx)
		if err != nil {
			return
		}
		packet, err := enc.Encode(audio.BytesToInt16s(frame.Data))
		if err != nil {
			s.log.Warn("opus encode failed", "error", err)
			continue
		}
		if err := s.peer.WriteSample(packet); err != nil {
			s.log.Debug("track write failed", "error", err)
		}
	}
}

// StartAudio attaches the connectivity-check sine generator at freq Hz.
func (s *Session) StartAudio(freq float64) {
	if freq <= 0 {
		freq = 440
	}
	s.source.SetGenerator(audio.NewSine(freq))
	s.log.Info("test tone started", "freq", freq)
}

// StopAudio detaches the sine generator; the track reverts to silence.
func (s *Session) StopAudio() {
	s.source.ClearGenerator()
	s.log.Info("test tone stopped")
}

// SpeakText synthesizes text sentence by sentence and streams it into the
// playback queue, so audio starts before the full reply is rendered.
// Sentences are synthesized sequentially to keep ordering trivial.
func (s *Session) SpeakText(ctx context.Context, text, voiceID string) error {
	s.source.SetGenerator(&audio.QueueGenerator{Queue: s.queue})

	for _, sentence := range splitSentences(text) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		start := time.Now()
		pcm, rate, err := s.ttsEng.Synthesize(ctx, sentence, voiceID)
		s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("session: synthesize %q: %w", truncateForLog(sentence), err)
		}
		if len(pcm) == 0 {
			continue
		}
		if rate != audio.SampleRate {
			pcm = audio.ResampleMono16(pcm, rate, audio.SampleRate)
		}
		s.queue.Enqueue(pcm)
	}
	return nil
}

// StopSpeaking is the barge-in path: drop all queued audio and detach the
// generator. Idempotent; an in-flight synthesis may still enqueue its blob
// but nothing reads it once the generator is detached.
func (s *Session) StopSpeaking() {
	s.queue.Clear()
	s.source.ClearGenerator()
}

// StartRecording clears the capture buffer, turns recording on, and spawns
// the rolling transcriber. onPartial may be nil.
func (s *Session) StartRecording(onPartial PartialFunc) {
	s.mu.Lock()
	if s.stopTranscriber != nil {
		s.stopTranscriber()
	}
	s.capture = nil
	s.captureN = 0
	s.recording = true
	s.onPartial = onPartial

	tctx, cancel := context.WithCancel(s.ctx)
	s.stopTranscriber = cancel
	s.mu.Unlock()

	go s.transcribeLoop(tctx)
	s.log.Info("recording started")
}

// transcribeLoop re-transcribes the full capture buffer every interval and
// forwards non-empty partials. Rolling full-buffer transcription keeps the
// partials monotonically improving without overlap stitching.
func (s *Session) transcribeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.transcribeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if !s.recording || s.captureN == 0 {
			s.mu.Unlock()
			continue
		}
		pcm := s.snapshotCaptureLocked()
		onPartial := s.onPartial
		s.mu.Unlock()

		text, err := s.transcribe(ctx, pcm)
		if err != nil {
			s.log.Warn("rolling transcription failed", "error", err)
			continue
		}
		if text == "" {
			continue
		}

		s.mu.Lock()
		stillRecording := s.recording
		s.mu.Unlock()
		if stillRecording && onPartial != nil {
			onPartial(text, true)
		}
	}
}

// StopRecording turns recording off, cancels the rolling transcriber, and
// runs one final transcription pass over the whole utterance. The capture
// buffer is cleared; the final text is returned.
func (s *Session) StopRecording(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.recording = false
	if s.stopTranscriber != nil {
		s.stopTranscriber()
		s.stopTranscriber = nil
	}
	pcm := s.snapshotCaptureLocked()
	s.capture = nil
	s.captureN = 0
	s.mu.Unlock()

	s.log.Info("recording stopped", "captured_bytes", len(pcm))
	if len(pcm) == 0 {
		return "", nil
	}
	return s.transcribe(ctx, pcm)
}

// transcribe resamples the 48 kHz capture down to the engine rate and runs
// one STT pass.
func (s *Session) transcribe(ctx context.Context, pcm []byte) (string, error) {
	resampled := audio.ResampleMono16(pcm, audio.SampleRate, sttSampleRate)
	start := time.Now()
	text, err := s.sttEng.Transcribe(ctx, resampled, sttSampleRate)
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("session: transcribe: %w", err)
	}
	return text, nil
}

func (s *Session) snapshotCaptureLocked() []byte {
	out := make([]byte, 0, s.captureN)
	for _, chunk := range s.capture {
		out = append(out, chunk...)
	}
	return out
}

// Recording reports whether mic capture is on.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Close tears the session down: stops audio, cancels the transcriber and
// ingest tasks, closes the peer connection. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.recording = false
	if s.stopTranscriber != nil {
		s.stopTranscriber()
		s.stopTranscriber = nil
	}
	s.mu.Unlock()

	s.StopSpeaking()
	s.cancel()
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	if s.peer != nil {
		return s.peer.Close()
	}
	return nil
}

// splitSentences splits trimmed text at sentence-ending punctuation
// followed by whitespace. Empty pieces are dropped; text without a boundary
// comes back as one piece.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if i+1 >= len(runes) || !isSpace(runes[i+1]) {
			continue
		}
		piece := strings.TrimSpace(string(runes[start : i+1]))
		if piece != "" {
			out = append(out, piece)
		}
		start = i + 1
	}
	if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
		out = append(out, piece)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func truncateForLog(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
