package gelf

import (
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestWriterSendsSlogJSONAsGELF(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp not available: %v", err)
	}
	defer pc.Close()

	w, err := New(pc.LocalAddr().String(), "tenderdesk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	logger := slog.New(slog.NewJSONHandler(w, nil))
	logger.Warn("coercion degraded", "field", "budget", "id", "abc")

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 8192)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf[:n], &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["short_message"] != "coercion degraded" {
		t.Errorf("short_message = %v", got["short_message"])
	}
	if got["level"] != float64(4) {
		t.Errorf("level = %v, want 4", got["level"])
	}
	if got["_field"] != "budget" || got["_attr_id"] != "abc" {
		t.Errorf("attrs not forwarded: %v", got)
	}
	if got["_service"] != "tenderdesk-test" || got["version"] != "1.1" {
		t.Errorf("envelope fields wrong: %v", got)
	}
}

func TestMessagePlainText(t *testing.T) {
	w := &Writer{hostname: "h", service: "s"}
	msg := w.message([]byte("time=2026-01-01T00:00:00Z level=ERROR msg=boom\n"), time.Unix(0, 0))
	if msg["level"] != 3 {
		t.Errorf("level = %v", msg["level"])
	}
	if msg["short_message"] != "time=2026-01-01T00:00:00Z level=ERROR msg=boom" {
		t.Errorf("short_message = %v", msg["short_message"])
	}
}
