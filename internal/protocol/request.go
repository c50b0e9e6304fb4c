package protocol

// RequestType tags a request on the wire.
type RequestType string

const (
	TypeConvert      RequestType = "CONVERT"
	TypeExtractAudio RequestType = "EXTRACT_AUDIO"
	TypeTranscribe   RequestType = "TRANSCRIBE"
)

// Request is one job for an engine. The set of implementations is closed.
type Request interface {
	Type() RequestType
	isRequest()
}

// Convert transcodes File into Format.
type Convert struct {
	File   Blob   `json:"-"`
	Format Format `json:"format"`
}

func (Convert) Type() RequestType { return TypeConvert }
func (Convert) isRequest()        {}

// ExtractAudio produces 16 kHz mono loudness-normalised PCM from File.
type ExtractAudio struct {
	File Blob `json:"-"`
}

func (ExtractAudio) Type() RequestType { return TypeExtractAudio }
func (ExtractAudio) isRequest()        {}

// Transcribe runs speech recognition over 16 kHz mono samples.
type Transcribe struct {
	Samples []float32 `json:"-"`
	ModelID string    `json:"model_id"`
}

func (Transcribe) Type() RequestType { return TypeTranscribe }
func (Transcribe) isRequest()        {}
