package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/echohall/voicegate/internal/config"
	"github.com/echohall/voicegate/pkg/rtc"
)

// defaultSTUN is handed out when no TURN API and no static ICE config exist.
var defaultSTUN = []rtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// iceEntry tolerates both the RTCIceServer "urls" array form and the single
// string form that TURN credential APIs commonly return.
type iceEntry struct {
	URLs       json.RawMessage `json:"urls"`
	Username   string          `json:"username"`
	Credential string          `json:"credential"`
}

func (e iceEntry) toServer() (rtc.ICEServer, error) {
	out := rtc.ICEServer{Username: e.Username, Credential: e.Credential}
	if len(e.URLs) == 0 {
		return out, fmt.Errorf("gateway: ice entry has no urls")
	}

	var many []string
	if err := json.Unmarshal(e.URLs, &many); err == nil {
		out.URLs = many
		return out, nil
	}
	var one string
	if err := json.Unmarshal(e.URLs, &one); err != nil {
		return out, fmt.Errorf("gateway: decode ice urls: %w", err)
	}
	out.URLs = []string{one}
	return out, nil
}

func parseICEServers(data []byte) ([]rtc.ICEServer, error) {
	var entries []iceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("gateway: decode ice servers: %w", err)
	}
	out := make([]rtc.ICEServer, 0, len(entries))
	for _, e := range entries {
		s, err := e.toServer()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// fetchICEServers resolves the ICE server list for one connection: the TURN
// credential API when configured, else the static JSON from config, else a
// public STUN server. A failing TURN fetch falls through to the static list
// rather than erroring; the connection still works on STUN alone.
func fetchICEServers(ctx context.Context, client *http.Client, cfg config.ICEConfig, log *slog.Logger) []rtc.ICEServer {
	if cfg.TURNAPIURL != "" {
		servers, err := fetchTURN(ctx, client, cfg.TURNAPIURL)
		if err != nil {
			log.Warn("turn credential fetch failed", "url", cfg.TURNAPIURL, "error", err)
		} else if len(servers) > 0 {
			return servers
		}
	}

	if cfg.ServersJSON != "" {
		servers, err := parseICEServers([]byte(cfg.ServersJSON))
		if err != nil {
			log.Warn("static ice server config is invalid", "error", err)
		} else if len(servers) > 0 {
			return servers
		}
	}

	return defaultSTUN
}

func fetchTURN(ctx context.Context, client *http.Client, url string) ([]rtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: create turn request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: GET turn api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: turn api returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway: read turn response: %w", err)
	}
	return parseICEServers(body)
}
