package config

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zhouzirui/canvass-coach/backend/internal/service/coaching"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CORS_ALLOWED_ORIGINS", "COACH_PROVIDER", "REPLAY_SPEED",
		"MOCK_CONNECT_DELAY_MS", "ALT_KEEPALIVE_SECONDS", "SESSION_TIMEOUT",
		"LIVE_TOKEN_URL", "LIVE_API_KEY", "ALT_TOKEN_URL", "ALT_API_KEY",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: got %s want :8080", cfg.Server.Addr)
	}
	if cfg.Coach.Provider != CoachAuto {
		t.Fatalf("unexpected provider: got %s", cfg.Coach.Provider)
	}
	if cfg.Voice.MockDelay != voice.DefaultMockDelay || cfg.Voice.AltKeepAlive != voice.DefaultKeepAlive {
		t.Fatalf("unexpected voice defaults %+v", cfg.Voice)
	}
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Fatalf("unexpected idle timeout %s", cfg.Session.IdleTimeout)
	}

	opts := cfg.Voice.Options()
	if opts.Live.Tokens != nil || opts.Alternate.Tokens != nil {
		t.Fatal("expected no token sources without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("COACH_PROVIDER", "Gemini")
	t.Setenv("REPLAY_SPEED", "2.5")
	t.Setenv("MOCK_CONNECT_DELAY_MS", "0")
	t.Setenv("ALT_KEEPALIVE_SECONDS", "3")
	t.Setenv("SESSION_TIMEOUT", "90s")
	t.Setenv("LIVE_API_KEY", "live-key")
	t.Setenv("LIVE_TOKEN_URL", "")
	t.Setenv("ALT_TOKEN_URL", "https://tokens.example/grant")
	t.Setenv("ALT_API_KEY", "alt-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins); diff != "" {
		t.Fatalf("cors origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
	if cfg.Coach.Provider != CoachGemini {
		t.Fatalf("unexpected provider %s", cfg.Coach.Provider)
	}
	if cfg.Voice.ReplaySpeed != 2.5 || cfg.Voice.MockDelay != 0 || cfg.Voice.AltKeepAlive != 3*time.Second {
		t.Fatalf("unexpected voice config %+v", cfg.Voice)
	}
	if cfg.Session.IdleTimeout != 90*time.Second {
		t.Fatalf("unexpected idle timeout %s", cfg.Session.IdleTimeout)
	}

	opts := cfg.Voice.Options()
	if got, ok := opts.Live.Tokens.(voice.StaticTokenSource); !ok || got != "live-key" {
		t.Fatalf("unexpected live token source %#v", opts.Live.Tokens)
	}
	httpSource, ok := opts.Alternate.Tokens.(*voice.HTTPTokenSource)
	if !ok {
		t.Fatalf("unexpected alternate token source %#v", opts.Alternate.Tokens)
	}
	if httpSource.Header.Get("Authorization") != "Bearer alt-key" {
		t.Fatalf("unexpected token header %v", httpSource.Header)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":            "80 80",
		"COACH_PROVIDER":  "oracle",
		"REPLAY_SPEED":    "-1",
		"SESSION_TIMEOUT": "soon",
		"ARK_TEMPERATURE": "warm",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestAIConfigEnabled(t *testing.T) {
	if (AIConfig{Model: "m"}).Enabled() {
		t.Fatal("model without credentials should be disabled")
	}
	if !(AIConfig{Model: "m", APIKey: "k"}).Enabled() {
		t.Fatal("api key plus model should be enabled")
	}
	if !(AIConfig{Model: "m", AccessKey: "a", SecretKey: "s"}).Enabled() {
		t.Fatal("ak/sk plus model should be enabled")
	}
}

func TestNewCoachProviderFallsBackToHeuristic(t *testing.T) {
	cfg := &Config{Coach: CoachConfig{Provider: CoachAuto}}

	provider, err := cfg.NewCoachProvider(context.Background())
	if err != nil {
		t.Fatalf("NewCoachProvider err: %v", err)
	}
	if _, ok := provider.(*coaching.HeuristicCoach); !ok {
		t.Fatalf("unexpected provider %T", provider)
	}
}

func TestNewCoachProviderExplicitChoices(t *testing.T) {
	none := &Config{Coach: CoachConfig{Provider: CoachNone}}
	if provider, err := none.NewCoachProvider(context.Background()); err != nil || provider != nil {
		t.Fatalf("expected nil provider, got %T err %v", provider, err)
	}

	ark := &Config{Coach: CoachConfig{Provider: CoachArk}}
	if _, err := ark.NewCoachProvider(context.Background()); err == nil {
		t.Fatal("expected error for ark without credentials")
	}

	gemini := &Config{Coach: CoachConfig{Provider: CoachGemini}}
	if _, err := gemini.NewCoachProvider(context.Background()); err == nil {
		t.Fatal("expected error for gemini without key")
	}
}
