package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"navvoice/pkg/logging"
)

// maxFieldLen drops long values such as asset paths from the status line.
const maxFieldLen = 20

// key=value or key="quoted value" as written by slog's text handler.
var logField = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// LatestLogResponse is the last server log line in display form.
type LatestLogResponse struct {
	Log   string `json:"log"`
	Level string `json:"level,omitempty"`
}

func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	rec, _ := parseLogLine(logging.GlobalLogCapture.LastLine())
	writeJSON(w, LatestLogResponse{Log: rec.String(), Level: rec.level})
}

type logRecord struct {
	raw    string
	clock  string
	level  string
	msg    string
	fields []string
}

// parseLogLine splits a slog text line. ok is false when the line has no msg,
// in which case String returns it unchanged.
func parseLogLine(raw string) (rec logRecord, ok bool) {
	rec.raw = raw
	for _, m := range logField.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				rec.clock = t.Format("15:04:05")
			}
		case "level":
			rec.level = val
		case "msg":
			rec.msg = val
		default:
			if len(val) <= maxFieldLen {
				rec.fields = append(rec.fields, key+"="+val)
			}
		}
	}
	sort.Strings(rec.fields)
	return rec, rec.msg != ""
}

// String renders "HH:MM:SS msg (k=v, k=v)".
func (r logRecord) String() string {
	if r.msg == "" {
		return r.raw
	}
	out := r.msg
	if r.clock != "" {
		out = r.clock + " " + out
	}
	if len(r.fields) > 0 {
		out = fmt.Sprintf("%s (%s)", out, strings.Join(r.fields, ", "))
	}
	return out
}

func formatLogLine(raw string) string {
	rec, _ := parseLogLine(raw)
	return rec.String()
}
