package config

import (
	"testing"
	"time"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		path, body, want string
	}{
		{"bot.json", "twitch: {}", formatJSON},
		{"bot.YML", "{}", formatYAML},
		{"bot.conf", "  {\"twitch\":{}}", formatJSON},
		{"bot.conf", "twitch:\n  username: x\n", formatYAML},
	}
	for _, tc := range cases {
		if got := detectFormat(tc.path, []byte(tc.body)); got != tc.want {
			t.Fatalf("detectFormat(%q)=%s want %s", tc.path, got, tc.want)
		}
	}
}

func TestDecodeNumericChannelKey(t *testing.T) {
	cfg, err := decodeConfig("c.yaml", []byte("twitch:\n  username: x\nchannels:\n  1234:\n    id: '99'\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ch := cfg.Channels["1234"]; ch == nil || ch.ID != "99" {
		t.Fatalf("channels=%v", cfg.Channels)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := decodeConfig("c.yaml", []byte("\n# nothing\n")); err == nil {
		t.Fatalf("empty yaml accepted")
	}
	if _, err := decodeConfig("c.json", nil); err == nil {
		t.Fatalf("empty json accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("blank: %s %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "250ms", time.Second); err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit: %s %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Second); err == nil {
		t.Fatalf("negative accepted")
	}
}
