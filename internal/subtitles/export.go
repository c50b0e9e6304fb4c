package subtitles

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mediadesk/internal/protocol"
)

// ExportFormat names a transcript file format.
type ExportFormat string

const (
	ExportText ExportFormat = "txt"
	ExportSRT  ExportFormat = "srt"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat validates a user-supplied format name.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(value))); f {
	case ExportText, ExportSRT, ExportJSON:
		return f, nil
	case "":
		return ExportText, nil
	default:
		return "", fmt.Errorf("unsupported transcript format %q (want txt, srt or json)", value)
	}
}

// PlainText is the transcript text with surrounding whitespace removed.
func PlainText(text string) string {
	return strings.TrimSpace(text)
}

type jsonTranscript struct {
	Text     string             `json:"text"`
	Segments []protocol.Segment `json:"segments"`
}

// Render produces the file content for format.
func Render(format ExportFormat, text string, segments []protocol.Segment) ([]byte, error) {
	switch format {
	case ExportText:
		return []byte(PlainText(text) + "\n"), nil
	case ExportSRT:
		content := FormatSRT(segments)
		if content == "" {
			return []byte{}, nil
		}
		if issues := ValidateSRT(content, 0); len(issues) > 0 {
			return nil, fmt.Errorf("render srt: %s", strings.Join(issues, "; "))
		}
		return []byte(content), nil
	case ExportJSON:
		if segments == nil {
			segments = []protocol.Segment{}
		}
		data, err := json.MarshalIndent(jsonTranscript{Text: PlainText(text), Segments: segments}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode transcript: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported transcript format %q", format)
	}
}

// TranscriptFileName names a saved transcript: transcript_<local time>.<ext>.
func TranscriptFileName(now time.Time, format ExportFormat) string {
	return fmt.Sprintf("transcript_%s.%s", now.Format("2006-01-02_15-04-05"), format)
}

// MediaType is the content type served for format.
func (f ExportFormat) MediaType() string {
	return protocol.MediaTypeForName("x." + string(f))
}
