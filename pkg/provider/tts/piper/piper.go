// Package piper provides a Piper-backed TTS engine.
//
// Synthesis is performed against a running piper HTTP server via
// POST / with a JSON body; the server answers with a WAV file whose PCM is
// extracted and returned at the voice's native rate (typically 22 050 Hz).
//
// Voice models are ONNX blobs fetched lazily from the HuggingFace
// rhasspy/piper-voices repository on first use and cached in a local model
// directory shared with the server. Concurrent first uses of the same voice
// are collapsed into one download.
package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/echohall/voicegate/pkg/provider/tts"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultModelDir = "models"
)

// Compile-time assertion that Engine implements tts.Engine.
var _ tts.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithModelDir sets the directory where voice model blobs are cached.
// Defaults to "models" relative to the working directory. The piper server
// must be pointed at the same directory.
func WithModelDir(dir string) Option {
	return func(e *Engine) {
		e.modelDir = dir
	}
}

// WithTimeout sets the per-request HTTP timeout for synthesis calls.
// Defaults to 60 s; medium-quality voices render slower than real time on
// small CPUs.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.httpClient.Timeout = d
	}
}

// Engine implements tts.Engine backed by a piper HTTP server. Safe for
// concurrent use; model downloads are deduplicated via singleflight.
type Engine struct {
	serverURL  string
	modelDir   string
	httpClient *http.Client
	downloads  singleflight.Group
}

// New creates an Engine that targets the piper server at serverURL (e.g.,
// "http://localhost:5000"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		modelDir:   defaultModelDir,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// synthRequest is the JSON body sent to the piper server.
type synthRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize renders text with the given voice. Unknown voice ids fall back
// to the default voice with a warning. The voice model is downloaded on
// first use.
func (e *Engine) Synthesize(ctx context.Context, text, voiceID string) ([]byte, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, nil
	}

	entry, ok := catalogByID[voiceID]
	if !ok {
		if voiceID != "" {
			slog.Warn("unknown voice, falling back to default", "voice", voiceID, "default", DefaultVoice)
		}
		entry = catalogByID[DefaultVoice]
	}

	if err := e.ensureVoice(ctx, entry); err != nil {
		return nil, 0, err
	}

	body, err := json.Marshal(synthRequest{Text: text, Voice: entry.ID})
	if err != nil {
		return nil, 0, fmt.Errorf("piper: marshal synth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("piper: create synth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("piper: POST /: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("piper: POST / returned status %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("piper: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, 0, err
	}
	return wav[info.DataOffset:], info.SampleRate, nil
}

// Voices returns the catalog with Downloaded flags reflecting the on-disk
// model cache.
func (e *Engine) Voices() []tts.Voice {
	out := make([]tts.Voice, 0, len(voiceCatalog))
	for _, entry := range voiceCatalog {
		_, err := os.Stat(filepath.Join(e.modelDir, entry.ID+".onnx"))
		out = append(out, tts.Voice{
			ID:          entry.ID,
			DisplayName: entry.DisplayName,
			Language:    entry.Lang,
			Locale:      entry.Locale,
			Quality:     entry.Quality,
			Downloaded:  err == nil,
		})
	}
	return out
}

// ensureVoice downloads the voice's .onnx model and .onnx.json config into
// the model directory if either is missing. Concurrent calls for the same
// voice share one download.
func (e *Engine) ensureVoice(ctx context.Context, entry catalogEntry) error {
	onnxPath := filepath.Join(e.modelDir, entry.ID+".onnx")
	configPath := filepath.Join(e.modelDir, entry.ID+".onnx.json")

	_, onnxErr := os.Stat(onnxPath)
	_, configErr := os.Stat(configPath)
	if onnxErr == nil && configErr == nil {
		return nil
	}

	_, err, _ := e.downloads.Do(entry.ID, func() (any, error) {
		if err := os.MkdirAll(e.modelDir, 0o755); err != nil {
			return nil, fmt.Errorf("piper: create model dir: %w", err)
		}
		onnxURL, configURL := modelURLs(entry)
		if _, err := os.Stat(onnxPath); err != nil {
			slog.Info("downloading voice model", "voice", entry.ID)
			if err := e.download(ctx, onnxURL, onnxPath); err != nil {
				return nil, err
			}
		}
		if _, err := os.Stat(configPath); err != nil {
			slog.Info("downloading voice config", "voice", entry.ID)
			if err := e.download(ctx, configURL, configPath); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// download fetches url into path via a temp file so a failed transfer never
// leaves a truncated model behind.
func (e *Engine) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("piper: create download request: %w", err)
	}

	// Model blobs can be hundreds of megabytes; do not apply the synthesis
	// timeout here.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("piper: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("piper: GET %s returned status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("piper: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("piper: write model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("piper: close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("piper: move model into place: %w", err)
	}
	return nil
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int
	SampleRate int
	Channels   int
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. The fmt chunk size may vary,
// so a fixed 44-byte offset is not assumed.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("piper: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("piper: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("piper: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("piper: WAV response missing data chunk")
}
