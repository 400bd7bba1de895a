package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric"

	"github.com/echohall/voicegate/internal/convo"
	"github.com/echohall/voicegate/internal/observe"
	"github.com/echohall/voicegate/internal/session"
	"github.com/echohall/voicegate/pkg/provider/llm/ollama"
	"github.com/echohall/voicegate/pkg/rtc"
)

// errCloseConn signals the read loop to stop without logging a failure.
var errCloseConn = errors.New("gateway: connection closed by handler")

// mediaSession is the per-connection media plane the signalling loop drives.
// Satisfied by [session.Session]; tests substitute a stub.
type mediaSession interface {
	HandleOffer(ctx context.Context, offerSDP string) (string, error)
	StartAudio(freq float64)
	StopAudio()
	SpeakText(ctx context.Context, text, voiceID string) error
	StopSpeaking()
	StartRecording(onPartial session.PartialFunc)
	StopRecording(ctx context.Context) (string, error)
	Close() error
}

var _ mediaSession = (*session.Session)(nil)

// wsConn is the per-connection state of one signalling socket. All fields
// except the write path are touched only from the read loop; writes are
// serialized by writeMu because the transcription callback and the pull
// forwarder run on their own goroutines.
type wsConn struct {
	srv *Server
	ws  *websocket.Conn
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	sess       mediaSession
	orch       *convo.Orchestrator
	iceServers []rtc.ICEServer
	provider   string
	model      string
	voice      string

	// modelPinned is set once the client picks a model explicitly; the
	// availability fallback then stops second-guessing the choice.
	modelPinned bool
}

// handleWS upgrades the request and runs the signalling loop until the
// socket closes. The session, if one was created, dies with the socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(1 << 20)

	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		srv:    s,
		ws:     ws,
		log:    s.log.With("remote", r.RemoteAddr),
		ctx:    ctx,
		cancel: cancel,
		voice:  s.cfg.TTS.DefaultVoice,
	}
	defer c.close()

	c.log.Info("signalling socket open")
	go c.heartbeat()
	c.readLoop()
}

// close tears the connection down once: session first, then the socket.
func (c *wsConn) close() {
	c.cancel()
	if c.sess != nil {
		if err := c.sess.Close(); err != nil {
			c.log.Warn("session close failed", "error", err)
		}
		c.sess = nil
	}
	c.ws.Close(websocket.StatusNormalClosure, "session closed")
	c.log.Info("signalling socket closed")
}

// heartbeat pings every heartbeatInterval; a failed ping kills the
// connection context so the read loop unblocks.
func (c *wsConn) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
		err := c.ws.Ping(pingCtx)
		cancel()
		if err != nil {
			c.log.Info("heartbeat failed", "error", err)
			c.cancel()
			return
		}
	}
}

func (c *wsConn) readLoop() {
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || c.ctx.Err() != nil {
				return
			}
			c.log.Info("socket read ended", "error", err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid JSON")
			continue
		}
		c.srv.metrics.RecordWSMessage(c.ctx, msg.Type, "inbound")

		if err := c.dispatch(msg); err != nil {
			if errors.Is(err, errCloseConn) {
				return
			}
			c.log.Warn("message handling failed", "type", msg.Type, "error", err)
		}
	}
}

// dispatch routes one control message. Handlers that need to reject input
// reply with an error message themselves and return nil; a non-nil return is
// an internal failure worth logging.
func (c *wsConn) dispatch(msg clientMessage) error {
	switch msg.Type {
	case "hello":
		return c.handleHello(msg)
	case "webrtc_offer":
		return c.handleOffer(msg)
	case "start":
		return c.handleStart(msg)
	case "stop":
		return c.withSession(func(s mediaSession) { s.StopAudio() })
	case "speak":
		return c.handleSpeak(msg)
	case "stop_speaking":
		return c.withSession(func(s mediaSession) { s.StopSpeaking() })
	case "set_provider":
		return c.handleSetProvider(msg)
	case "set_model":
		return c.handleSetModel(msg)
	case "set_voice":
		return c.handleSetVoice(msg)
	case "pull_model":
		return c.handlePullModel(msg)
	case "mic_start":
		return c.handleMicStart()
	case "mic_stop":
		return c.handleMicStop()
	case "ping":
		c.send("pong", simpleEvent{Type: "pong"})
		return nil
	default:
		c.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
		return nil
	}
}

// ─── Greeting and signalling ──────────────────────────────────────────────────

func (c *wsConn) handleHello(msg clientMessage) error {
	if token := c.srv.cfg.Server.AuthToken; token != "" && msg.Token != token {
		c.sendError("invalid token")
		c.ws.Close(websocket.StatusPolicyViolation, "invalid token")
		return errCloseConn
	}

	c.iceServers = fetchICEServers(c.ctx, c.srv.httpClient, c.srv.cfg.ICE, c.log)

	catalog := c.srv.ollama.Catalog(c.ctx)
	provider, model := c.srv.defaultSelection(catalog)

	backend, err := c.srv.newProvider(provider)
	if err != nil {
		// Key-gated default without a key; ollama always constructs.
		c.log.Warn("default provider unavailable, falling back to ollama",
			"provider", provider, "error", err)
		provider = "ollama"
		model = c.srv.cfg.LLM.OllamaModel
		backend, _ = c.srv.newProvider(provider)
	}
	c.orch = c.srv.newOrchestrator(backend, model)
	c.provider, c.model = provider, model

	voices := c.srv.ttsEng.Voices()
	c.send("hello_ack", helloAck{
		Type:               "hello_ack",
		Voices:             voices,
		TTSVoices:          voices,
		ICEServers:         c.iceServers,
		LLMProviders:       c.srv.cfg.LLM.AvailableProviders(),
		ModelCatalog:       c.modelCatalog(catalog),
		LLMDefaultProvider: provider,
		LLMDefault:         provider,
		LLMDefaultModel:    model,
		TTSDefaultVoice:    c.voice,
	})
	return nil
}

func (c *wsConn) handleOffer(msg clientMessage) error {
	if msg.SDP == "" {
		c.sendError("webrtc_offer requires sdp")
		return nil
	}
	if c.sess == nil {
		if c.iceServers == nil {
			c.iceServers = fetchICEServers(c.ctx, c.srv.httpClient, c.srv.cfg.ICE, c.log)
		}
		sess, err := c.srv.newSession(c.iceServers, c.log)
		if err != nil {
			c.sendError("failed to create session")
			return err
		}
		c.sess = sess
	}

	ctx, cancel := context.WithTimeout(c.ctx, offerTimeout)
	defer cancel()
	answer, err := c.sess.HandleOffer(ctx, msg.SDP)
	if err != nil {
		c.sendError("failed to handle offer")
		return err
	}
	c.send("webrtc_answer", webrtcAnswer{Type: "webrtc_answer", SDP: answer})
	return nil
}

func (c *wsConn) handleStart(msg clientMessage) error {
	return c.withSession(func(s mediaSession) {
		s.StartAudio(sineFreq(msg.VoiceID))
	})
}

// sineFreq maps a connectivity voice id like "sine-440" to its frequency.
func sineFreq(voiceID string) float64 {
	raw, ok := strings.CutPrefix(voiceID, "sine-")
	if !ok {
		return 440
	}
	freq, err := strconv.ParseFloat(raw, 64)
	if err != nil || freq <= 0 {
		return 440
	}
	return freq
}

func (c *wsConn) handleSpeak(msg clientMessage) error {
	if msg.Text == "" {
		c.sendError("speak requires text")
		return nil
	}
	return c.withSession(func(s mediaSession) {
		if err := s.SpeakText(c.ctx, msg.Text, c.voice); err != nil {
			c.log.Warn("speak failed", "error", err)
			c.sendError("speech synthesis failed")
		}
	})
}

// withSession runs fn when a session exists, else replies with an error.
func (c *wsConn) withSession(fn func(mediaSession)) error {
	if c.sess == nil {
		c.sendError("no active session; send webrtc_offer first")
		return nil
	}
	fn(c.sess)
	return nil
}

// ─── Provider, model, and voice selection ─────────────────────────────────────

func (c *wsConn) handleSetProvider(msg clientMessage) error {
	if c.orch == nil {
		c.sendError("send hello first")
		return nil
	}
	backend, err := c.srv.newProvider(msg.Provider)
	if err != nil {
		c.sendError(err.Error())
		return nil
	}
	c.orch.SetProvider(backend)
	c.provider = backend.Name()
	c.modelPinned = false
	if msg.Model != "" {
		c.orch.SetModel(msg.Model)
		c.model = msg.Model
		c.modelPinned = true
	}
	c.log.Info("provider switched", "provider", c.provider, "model", c.model)
	c.send("provider_set", simpleEvent{Type: "provider_set", Provider: c.provider, Model: c.model})
	return nil
}

func (c *wsConn) handleSetModel(msg clientMessage) error {
	if c.orch == nil {
		c.sendError("send hello first")
		return nil
	}
	if msg.Model == "" {
		c.sendError("set_model requires model")
		return nil
	}
	// A model change clears conversation history; the old exchanges were
	// grounded in a different model's behavior.
	c.orch.SetModel(msg.Model)
	c.model = msg.Model
	c.modelPinned = true
	c.log.Info("model switched", "model", msg.Model)
	c.send("model_set", simpleEvent{Type: "model_set", Model: msg.Model})
	return nil
}

func (c *wsConn) handleSetVoice(msg clientMessage) error {
	if msg.VoiceID == "" {
		c.sendError("set_voice requires voice_id")
		return nil
	}
	if !c.voiceExists(msg.VoiceID) {
		c.sendError(fmt.Sprintf("unknown voice %q", msg.VoiceID))
		return nil
	}
	c.voice = msg.VoiceID
	c.send("voice_set", simpleEvent{Type: "voice_set", VoiceID: msg.VoiceID})
	return nil
}

func (c *wsConn) voiceExists(id string) bool {
	for _, v := range c.srv.ttsEng.Voices() {
		if v.ID == id {
			return true
		}
	}
	return false
}

// ─── Model pull ───────────────────────────────────────────────────────────────

// handlePullModel starts a background download and forwards progress frames.
// The read loop stays live for barge-in and pings throughout.
func (c *wsConn) handlePullModel(msg clientMessage) error {
	if msg.Model == "" {
		c.sendError("pull_model requires model")
		return nil
	}

	progress, err := c.srv.ollama.Pull(c.ctx, msg.Model)
	if err != nil {
		c.send("pull_error", pullErrorMsg{Type: "pull_error", Model: msg.Model, Message: err.Error()})
		return nil
	}
	c.send("pull_started", simpleEvent{Type: "pull_started", Model: msg.Model})

	go c.forwardPull(msg.Model, progress)
	return nil
}

func (c *wsConn) forwardPull(model string, progress <-chan ollama.PullProgress) {
	for p := range progress {
		if p.Err != nil {
			c.log.Warn("model pull failed", "model", model, "error", p.Err)
			c.srv.metrics.ModelPulls.Add(c.ctx, 1, pullStatusAttr("error"))
			c.send("pull_error", pullErrorMsg{Type: "pull_error", Model: model, Message: p.Err.Error()})
			return
		}
		c.send("pull_progress", pullProgressMsg{
			Type:      "pull_progress",
			Model:     model,
			Status:    p.Status,
			Percent:   p.Percent(),
			Total:     p.Total,
			Completed: p.Completed,
		})
	}
	if c.ctx.Err() != nil {
		return
	}

	c.log.Info("model pull complete", "model", model)
	c.srv.metrics.ModelPulls.Add(c.ctx, 1, pullStatusAttr("success"))
	c.send("pull_complete", simpleEvent{Type: "pull_complete", Model: model})
	c.send("model_catalog_update", catalogUpdate{
		Type:         "model_catalog_update",
		ModelCatalog: c.modelCatalog(c.srv.ollama.Catalog(c.ctx)),
	})
}

// modelCatalog wraps the ollama catalog with the key-gated cloud backends;
// ollama itself is described by the ollama_* fields.
func (c *wsConn) modelCatalog(catalog ollama.Catalog) modelCatalog {
	cloud := []string{}
	for _, p := range c.srv.cfg.LLM.AvailableProviders() {
		if p != "ollama" {
			cloud = append(cloud, p)
		}
	}
	return modelCatalog{Catalog: catalog, CloudProviders: cloud}
}

// ─── Mic capture and the agent turn ───────────────────────────────────────────

func (c *wsConn) handleMicStart() error {
	return c.withSession(func(s mediaSession) {
		s.StartRecording(func(text string, partial bool) {
			c.send("transcription", transcriptionMsg{Type: "transcription", Text: text, Partial: partial})
		})
	})
}

func (c *wsConn) handleMicStop() error {
	if c.sess == nil {
		c.sendError("no active session; send webrtc_offer first")
		return nil
	}

	text, err := c.sess.StopRecording(c.ctx)
	if err != nil {
		c.sendError("transcription failed")
		return err
	}
	c.send("transcription", transcriptionMsg{Type: "transcription", Text: text, Partial: false})

	if text == "" || c.orch == nil {
		return nil
	}
	return c.agentTurn(text)
}

// agentTurn runs one full voice exchange: thinking notice, the tool-calling
// chat loop, the reply, and its synthesis. The turn holds the message loop;
// barge-in still works because stop_speaking only mutates queue state.
func (c *wsConn) agentTurn(text string) error {
	start := time.Now()
	c.send("agent_thinking", simpleEvent{Type: "agent_thinking"})

	if c.provider == "ollama" && !c.modelPinned {
		active, err := c.orch.EnsureModel(c.ctx)
		if err == nil && active == "" {
			c.sendError("no language model available; pull one first")
			return nil
		}
		if err != nil {
			c.log.Warn("model availability check failed", "error", err)
		}
	}

	reply, err := c.orch.Chat(c.ctx, text, func(name, args string) {
		c.log.Info("tool call", "tool", name, "args", args)
	})
	if err != nil {
		c.srv.metrics.RecordProviderError(c.ctx, c.provider, "chat")
		c.sendError("LLM error: " + err.Error())
		return nil
	}
	c.srv.metrics.TurnDuration.Record(c.ctx, time.Since(start).Seconds())

	c.send("agent_reply", agentReply{Type: "agent_reply", Text: reply})
	if err := c.sess.SpeakText(c.ctx, reply, c.voice); err != nil {
		c.log.Warn("reply synthesis failed", "error", err)
	}
	return nil
}

// ─── Outbound writes ──────────────────────────────────────────────────────────

// send marshals and writes one outbound message. Failed writes are logged,
// not propagated; the read loop notices the dead socket on its own.
func (c *wsConn) send(msgType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("marshal outbound message failed", "type", msgType, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ctx.Err() != nil {
		return
	}
	c.srv.metrics.RecordWSMessage(c.ctx, msgType, "outbound")
	if err := c.ws.Write(c.ctx, websocket.MessageText, data); err != nil {
		c.log.Debug("socket write failed", "type", msgType, "error", err)
	}
}

func (c *wsConn) sendError(message string) {
	c.send("error", serverError{Type: "error", Message: message})
}

func pullStatusAttr(status string) metric.MeasurementOption {
	return metric.WithAttributes(observe.Attr("status", status))
}
