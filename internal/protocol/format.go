package protocol

import (
	"fmt"
	"strings"

	"mediadesk/internal/services"
)

// Format is a media conversion target.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatM4A Format = "m4a"
	FormatMP4 Format = "mp4"
	FormatMOV Format = "mov"
	FormatMKV Format = "mkv"
)

// Formats lists every supported target in display order.
var Formats = []Format{FormatMP3, FormatWAV, FormatM4A, FormatMP4, FormatMOV, FormatMKV}

// ParseFormat validates value against the allow-list.
func ParseFormat(value string) (Format, error) {
	candidate := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", services.Wrap(services.ErrUnsupportedFormat, "media", "parse format",
		fmt.Sprintf("unsupported target format %q", value), nil)
}

// Valid reports whether f is in the allow-list.
func (f Format) Valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// MediaType is the media type declared on converted outputs.
func (f Format) MediaType() string {
	return MediaTypeForName("x." + string(f))
}

// IsAudio reports whether the target drops the video stream.
func (f Format) IsAudio() bool {
	switch f {
	case FormatMP3, FormatWAV, FormatM4A:
		return true
	}
	return false
}

func (f Format) String() string { return string(f) }
