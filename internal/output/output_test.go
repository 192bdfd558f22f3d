package output

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriter_Structured(t *testing.T) {
	v := sample{Name: "server", Version: "1.19.3"}

	var buf bytes.Buffer
	if err := NewWriter(&buf, FormatJSON).Write(v, Fields{{"ignored", "x"}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"version": "1.19.3"`) {
		t.Errorf("json output = %s", buf.String())
	}

	buf.Reset()
	if err := NewWriter(&buf, FormatYAML).Write(v, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "name: server\nversion: 1.19.3\n" {
		t.Errorf("yaml output = %q", buf.String())
	}
}

func TestWriter_TextUsesRenderer(t *testing.T) {
	var buf bytes.Buffer
	fields := Fields{}.Add("Installed", "1.19.2").Add("Skipped", "").Add("Latest", "1.19.3")

	if err := NewWriter(&buf, FormatText).Write(sample{}, fields); err != nil {
		t.Fatal(err)
	}
	want := "Installed:  1.19.2\nLatest:     1.19.3\n"
	if buf.String() != want {
		t.Errorf("text output = %q, want %q", buf.String(), want)
	}
}

func TestTable(t *testing.T) {
	tbl := Table{Headers: []string{"ID", "STATE"}, Empty: "none"}
	if tbl.String() != "none" {
		t.Errorf("empty table = %q", tbl.String())
	}

	tbl.Rows = [][]string{{"a", "committed"}, {"bbbb", "rolled_back"}}
	lines := strings.Split(strings.TrimSpace(tbl.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), tbl.String())
	}
	if !strings.HasPrefix(lines[2], "bbbb  rolled_back") {
		t.Errorf("row not aligned: %q", lines[2])
	}
}
