package subtitles

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mediadesk/internal/protocol"
)

// FormatSRT renders segments as numbered SRT cues. Cue text is trimmed and
// cues without text are skipped.
func FormatSRT(segments []protocol.Segment) string {
	var b strings.Builder
	index := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		index++
		if index > 1 {
			b.WriteByte('\n')
		}
		end := seg.End
		if end < seg.Start {
			end = seg.Start
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", index, FormatTimestamp(seg.Start), FormatTimestamp(end), text)
	}
	return b.String()
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	msTotal := int(seconds*1000 + 0.5)
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp reads HH:MM:SS,mmm (a period separator is accepted).
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// ValidateSRT checks rendered SRT content. An empty result means it passed.
func ValidateSRT(content string, audioSeconds float64) []string {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if content == "" {
		return []string{"empty_subtitle_file"}
	}

	var issues []string
	var previousStart float64
	for i, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			issues = append(issues, fmt.Sprintf("cue %d: incomplete block", i+1))
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(lines[0])); err != nil || n != i+1 {
			issues = append(issues, fmt.Sprintf("cue %d: bad sequence number %q", i+1, lines[0]))
		}
		parts := strings.Split(lines[1], "-->")
		if len(parts) != 2 {
			issues = append(issues, fmt.Sprintf("cue %d: missing time range", i+1))
			continue
		}
		start, errStart := ParseTimestamp(parts[0])
		end, errEnd := ParseTimestamp(parts[1])
		if errStart != nil || errEnd != nil {
			issues = append(issues, fmt.Sprintf("cue %d: unparseable time range", i+1))
			continue
		}
		if end < start {
			issues = append(issues, fmt.Sprintf("cue %d: ends before it starts", i+1))
		}
		if start < previousStart {
			issues = append(issues, fmt.Sprintf("cue %d: out of order", i+1))
		}
		if audioSeconds > 0 && end > audioSeconds+0.5 {
			issues = append(issues, fmt.Sprintf("cue %d: ends after the audio (%.1fs > %.1fs)", i+1, end, audioSeconds))
		}
		previousStart = start
	}
	return issues
}
