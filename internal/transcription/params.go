package transcription

// DecodeParams are the fixed decoding settings passed to a recognizer.
type DecodeParams struct {
	Language          string
	Task              string
	Timestamps        bool
	ChunkSeconds      float64
	StrideSeconds     float64
	NoRepeatNGramSize int
	RepetitionPenalty float64
	// whisper.cpp has no n-gram or penalty knobs; these suppress loops instead.
	MaxContext       int
	EntropyThreshold float64
}

// DefaultParams are used for every transcription job.
var DefaultParams = DecodeParams{
	Language:          "it",
	Task:              "transcribe",
	Timestamps:        true,
	ChunkSeconds:      30,
	StrideSeconds:     5,
	NoRepeatNGramSize: 2,
	RepetitionPenalty: 1.2,
	MaxContext:        0,
	EntropyThreshold:  2.4,
}

// duplicateThreshold is the cosine similarity above which two consecutive
// segments are treated as one repeated phrase.
const duplicateThreshold = 0.9
