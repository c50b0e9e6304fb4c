package subtitles

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mediadesk/internal/protocol"
)

func TestFormatSRT(t *testing.T) {
	got := FormatSRT([]protocol.Segment{
		{Start: 0, End: 4, Text: " ciao a tutti"},
		{Start: 4, End: 4, Text: "   "},
		{Start: 4, End: 3729.5, Text: "questa è una prova "},
	})
	want := "1\n00:00:00,000 --> 00:00:04,000\nciao a tutti\n\n" +
		"2\n00:00:04,000 --> 01:02:09,500\nquesta è una prova\n"
	if got != want {
		t.Fatalf("FormatSRT:\n%q\nwant\n%q", got, want)
	}
	if issues := ValidateSRT(got, 3730); len(issues) != 0 {
		t.Fatalf("rendered SRT failed validation: %v", issues)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	tests := []struct {
		seconds float64
		text    string
	}{
		{0, "00:00:00,000"},
		{1.2346, "00:00:01,235"},
		{59.9996, "00:01:00,000"},
		{3600 + 61.25, "01:01:01,250"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.seconds); got != tt.text {
			t.Fatalf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.text)
		}
	}
	if v, err := ParseTimestamp("01:01:01.250"); err != nil || v != 3661.25 {
		t.Fatalf("ParseTimestamp = %v, %v", v, err)
	}
	if _, err := ParseTimestamp("1:01"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestValidateSRTFindsProblems(t *testing.T) {
	content := "1\n00:00:05,000 --> 00:00:04,000\nciao\n\n" +
		"3\n00:00:01,000 --> 00:00:02,000\nfuori ordine\n\n" +
		"3\n00:00:01,000 --> 00:00:20,000\ntroppo lungo\n"
	issues := strings.Join(ValidateSRT(content, 10), "|")
	for _, want := range []string{"cue 1: ends before it starts", "cue 2: bad sequence number", "cue 2: out of order", "cue 3: ends after the audio"} {
		if !strings.Contains(issues, want) {
			t.Fatalf("issues %q missing %q", issues, want)
		}
	}
	if got := ValidateSRT("  ", 0); len(got) != 1 || got[0] != "empty_subtitle_file" {
		t.Fatalf("empty content issues = %v", got)
	}
}

func TestRender(t *testing.T) {
	segments := []protocol.Segment{{Start: 0, End: 1.5, Text: "ciao"}}

	txt, err := Render(ExportText, "  ciao \n", segments)
	if err != nil || string(txt) != "ciao\n" {
		t.Fatalf("txt = %q (%v)", txt, err)
	}

	data, err := Render(ExportJSON, "ciao", nil)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Text     string             `json:"text"`
		Segments []protocol.Segment `json:"segments"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Text != "ciao" || decoded.Segments == nil || len(decoded.Segments) != 0 {
		t.Fatalf("json = %s", data)
	}
	if !strings.Contains(string(data), `"segments": []`) {
		t.Fatalf("empty segments must render as an array: %s", data)
	}

	if _, err := Render("docx", "x", nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestRenderSRTValidatesCues(t *testing.T) {
	srt, err := Render(ExportSRT, "ciao mondo", []protocol.Segment{
		{Start: 0, End: 1.5, Text: "ciao"},
		{Start: 1.5, End: 3, Text: "mondo"},
	})
	if err != nil {
		t.Fatalf("Render srt: %v", err)
	}
	if !strings.HasPrefix(string(srt), "1\n00:00:00,000 --> 00:00:01,500\nciao\n\n2\n") {
		t.Fatalf("srt = %q", srt)
	}

	_, err = Render(ExportSRT, "b a", []protocol.Segment{
		{Start: 5, End: 6, Text: "b"},
		{Start: 1, End: 2, Text: "a"},
	})
	if err == nil || !strings.Contains(err.Error(), "out of order") {
		t.Fatalf("expected out-of-order error, got %v", err)
	}

	empty, err := Render(ExportSRT, "", nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty transcript = %q, %v", empty, err)
	}
}

func TestParseExportFormat(t *testing.T) {
	for in, want := range map[string]ExportFormat{"": ExportText, " SRT ": ExportSRT, "json": ExportJSON} {
		got, err := ParseExportFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseExportFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseExportFormat("vtt"); err == nil {
		t.Fatal("expected error for vtt")
	}
}

func TestTranscriptFileName(t *testing.T) {
	now := time.Date(2026, 3, 9, 14, 5, 7, 0, time.Local)
	if got := TranscriptFileName(now, ExportSRT); got != "transcript_2026-03-09_14-05-07.srt" {
		t.Fatalf("TranscriptFileName = %q", got)
	}
	if ExportSRT.MediaType() != "application/x-subrip" {
		t.Fatalf("srt media type = %q", ExportSRT.MediaType())
	}
}
