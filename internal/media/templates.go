package media

import "mediadesk/internal/protocol"

// commonArgs precede every template.
var commonArgs = []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}

// convertTemplates holds the codec arguments placed between the input and the
// output file for each target format.
var convertTemplates = map[protocol.Format][]string{
	protocol.FormatMP3: {"-vn", "-ab", "192k"},
	protocol.FormatWAV: {"-vn", "-acodec", "pcm_s16le"},
	protocol.FormatM4A: {"-vn", "-c:a", "aac", "-b:a", "192k"},
	protocol.FormatMP4: {"-c:v", "libx264", "-preset", "fast", "-crf", "22", "-c:a", "aac", "-b:a", "128k"},
	protocol.FormatMOV: {"-c:v", "libx264", "-preset", "fast", "-c:a", "aac", "-f", "mov"},
	protocol.FormatMKV: {"-c:v", "libx264", "-preset", "fast", "-c:a", "aac"},
}

// extractArgs produce loudness-normalised 16 kHz mono PCM for transcription.
var extractArgs = []string{"-vn", "-af", "loudnorm=I=-16:TP=-1.5:LRA=11", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le"}

const extractOutput = "output_whisper.wav"

// ConvertArgs returns the full ffmpeg argument list for format, or false when
// the format has no template.
func ConvertArgs(format protocol.Format, input, output string) ([]string, bool) {
	codec, ok := convertTemplates[format]
	if !ok {
		return nil, false
	}
	return buildArgs(input, codec, output), true
}

// ExtractArgs returns the full ffmpeg argument list for audio extraction.
func ExtractArgs(input, output string) []string {
	return buildArgs(input, extractArgs, output)
}

func buildArgs(input string, codec []string, output string) []string {
	args := make([]string, 0, len(commonArgs)+len(codec)+3)
	args = append(args, commonArgs...)
	args = append(args, "-i", input)
	args = append(args, codec...)
	return append(args, output)
}
