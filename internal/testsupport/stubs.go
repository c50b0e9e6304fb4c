package testsupport

// FFmpegStub answers -version checks and otherwise copies the -i input to the
// last argument, which is where every mediadesk template puts its output.
const FFmpegStub = `#!/bin/sh
for arg in "$@"; do
  if [ "$arg" = "-version" ]; then
    echo "ffmpeg version 7.1-stub"
    exit 0
  fi
done
in=""
prev=""
last=""
for arg in "$@"; do
  if [ "$prev" = "-i" ]; then in="$arg"; fi
  prev="$arg"
  last="$arg"
done
if [ -z "$in" ] || [ ! -f "$in" ]; then
  echo "$in: No such file or directory" >&2
  exit 1
fi
cp "$in" "$last"
`

// FailingFFmpegStub passes the version check but fails every conversion.
const FailingFFmpegStub = `#!/bin/sh
for arg in "$@"; do
  if [ "$arg" = "-version" ]; then
    echo "ffmpeg version 7.1-stub"
    exit 0
  fi
done
echo "Invalid data found when processing input" >&2
exit 1
`

// WhisperStub writes a fixed two-segment whisper.cpp JSON transcript next to
// the -of prefix.
const WhisperStub = `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-of" ]; then out="$arg"; fi
  prev="$arg"
done
if [ -z "$out" ]; then
  echo "missing -of" >&2
  exit 2
fi
cat > "$out.json" <<'JSON'
{"transcription":[{"offsets":{"from":0,"to":4000},"text":" ciao a tutti"},{"offsets":{"from":4000,"to":9800},"text":" questa è una prova"}]}
JSON
`
