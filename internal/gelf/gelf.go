package gelf

import (
	"encoding/json"
	"net"
	"os"
	"strings"
	"time"
)

// Writer sends GELF messages over UDP and implements io.Writer so it can sit
// behind an slog handler via io.MultiWriter.
type Writer struct {
	conn     net.Conn
	hostname string
	service  string
}

// New creates a GELF UDP writer connected to addr (e.g. "172.17.0.1:12201").
func New(addr, service string) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "tenderdesk"
	}
	if service == "" {
		service = "tenderdesk"
	}
	return &Writer{conn: conn, hostname: hostname, service: service}, nil
}

// Write implements io.Writer. Each call sends one GELF message. slog JSON
// lines are unpacked into GELF fields; anything else is sent as the
// short message.
func (w *Writer) Write(p []byte) (int, error) {
	payload, err := json.Marshal(w.message(p, time.Now()))
	if err != nil {
		return len(p), nil
	}
	// Fire-and-forget
	_, _ = w.conn.Write(payload)
	return len(p), nil
}

func (w *Writer) Close() error {
	return w.conn.Close()
}

func (w *Writer) message(p []byte, now time.Time) map[string]any {
	line := strings.TrimRight(string(p), "\n")
	msg := map[string]any{
		"version":   "1.1",
		"host":      w.hostname,
		"timestamp": float64(now.UnixNano()) / 1e9,
		"level":     6,
		"_service":  w.service,
	}

	var record map[string]any
	if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &record) == nil {
		short, _ := record["msg"].(string)
		msg["short_message"] = short
		if lvl, ok := record["level"].(string); ok {
			msg["level"] = severity(lvl)
		}
		if ts, ok := record["time"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				msg["timestamp"] = float64(t.UnixNano()) / 1e9
			}
		}
		for k, v := range record {
			switch k {
			case "msg", "level", "time":
				continue
			case "id":
				k = "attr_id"
			}
			msg["_"+k] = v
		}
		return msg
	}

	// slog text lines start with time=... level=...
	msg["short_message"] = line
	switch {
	case strings.Contains(line, "level=ERROR"):
		msg["level"] = 3
	case strings.Contains(line, "level=WARN"):
		msg["level"] = 4
	case strings.Contains(line, "level=DEBUG"):
		msg["level"] = 7
	}
	return msg
}

// severity maps slog level names to syslog severities.
func severity(level string) int {
	switch {
	case strings.HasPrefix(level, "ERROR"):
		return 3
	case strings.HasPrefix(level, "WARN"):
		return 4
	case strings.HasPrefix(level, "DEBUG"):
		return 7
	default:
		return 6
	}
}
