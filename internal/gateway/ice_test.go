package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/echohall/voicegate/internal/config"
	"github.com/echohall/voicegate/pkg/rtc"
)

func TestParseICEServersURLForms(t *testing.T) {
	t.Parallel()

	// TURN credential APIs return "urls" as a bare string; the RTCIceServer
	// dictionary uses an array. Both must decode.
	data := `[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478"], "username": "u", "credential": "c"}
	]`
	got, err := parseICEServers([]byte(data))
	if err != nil {
		t.Fatalf("parseICEServers: %v", err)
	}
	want := []rtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "c"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("servers = %+v, want %+v", got, want)
	}
}

func TestParseICEServersRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, data := range []string{`{"urls":"x"}`, `[{"username":"u"}]`, `[`} {
		if _, err := parseICEServers([]byte(data)); err == nil {
			t.Errorf("parseICEServers(%q) succeeded, want error", data)
		}
	}
}

func TestFetchICEServersPrefersTURNAPI(t *testing.T) {
	t.Parallel()

	turn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"urls":"turn:relay.example.com:443","username":"u","credential":"c"}]`))
	}))
	defer turn.Close()

	cfg := config.ICEConfig{
		TURNAPIURL:  turn.URL,
		ServersJSON: `[{"urls":["stun:static.example.com"]}]`,
	}
	got := fetchICEServers(context.Background(), turn.Client(), cfg, slog.Default())
	if len(got) != 1 || got[0].URLs[0] != "turn:relay.example.com:443" {
		t.Errorf("servers = %+v, want turn relay", got)
	}
	if got[0].Username != "u" || got[0].Credential != "c" {
		t.Errorf("credentials not carried: %+v", got[0])
	}
}

func TestFetchICEServersFallsBackToStatic(t *testing.T) {
	t.Parallel()

	turn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer turn.Close()

	cfg := config.ICEConfig{
		TURNAPIURL:  turn.URL,
		ServersJSON: `[{"urls":["stun:static.example.com"]}]`,
	}
	got := fetchICEServers(context.Background(), turn.Client(), cfg, slog.Default())
	if len(got) != 1 || got[0].URLs[0] != "stun:static.example.com" {
		t.Errorf("servers = %+v, want static fallback", got)
	}
}

func TestFetchICEServersDefaultsToSTUN(t *testing.T) {
	t.Parallel()

	client := &http.Client{Timeout: time.Second}
	got := fetchICEServers(context.Background(), client, config.ICEConfig{}, slog.Default())
	if !reflect.DeepEqual(got, defaultSTUN) {
		t.Errorf("servers = %+v, want default STUN", got)
	}
}
