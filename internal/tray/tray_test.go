package tray

import "testing"

func TestDeviceAt(t *testing.T) {
	u := &UI{}
	u.devIDs = []string{"speakers", "headset", "monitor"}

	if id, ok := u.deviceAt(1); !ok || id != "headset" {
		t.Errorf("expected headset, got %q (ok=%v)", id, ok)
	}
	if _, ok := u.deviceAt(3); ok {
		t.Error("index past the device list must not resolve")
	}
	if _, ok := u.deviceAt(-1); ok {
		t.Error("negative index must not resolve")
	}

	// A rebuild with fewer devices leaves surplus items pointing past
	// the list; their clicks must resolve to nothing.
	u.devIDs = u.devIDs[:1]
	if _, ok := u.deviceAt(1); ok {
		t.Error("stale item index must not resolve after a shorter rebuild")
	}
}

func TestEmojiForStatus(t *testing.T) {
	cases := map[string]string{
		"capturing": "🔴",
		"idle":      "🟢",
		"error":     "⚪️",
		"bogus":     "🟢",
	}
	for status, want := range cases {
		if got := emojiForStatus(status); got != want {
			t.Errorf("status %q: expected %q, got %q", status, want, got)
		}
	}
}
