package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Scanned int    `json:"scanned" yaml:"scanned"`
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		name      string
		formatter Formatter
		want      string
	}{
		{name: "json", formatter: JSONFormatter{}, want: "{\"run_id\":\"abc\",\"scanned\":3}\n"},
		{name: "yaml", formatter: YAMLFormatter{}, want: "run_id: abc\nscanned: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.formatter.Write(&buf, sample{RunID: "abc", Scanned: 3}); err != nil {
				t.Fatalf("write: %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestYAMLFormatterNested(t *testing.T) {
	var buf bytes.Buffer
	payload := map[string]any{"failed_records": []string{"a", "b"}}
	if err := (YAMLFormatter{}).Write(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "failed_records:\n") || !strings.Contains(out, "- a\n") || !strings.Contains(out, "- b\n") {
		t.Fatalf("unexpected yaml: %q", out)
	}
}
