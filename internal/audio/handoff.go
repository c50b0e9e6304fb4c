package audio

import (
	"context"
	"errors"

	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
)

const decodeMessage = "corrupt or unreadable audio"

// Handoff decodes an extracted audio container into 16 kHz mono samples.
// Every failure is reported as DecodeFailed.
func Handoff(ctx context.Context, dec Decoder, blob protocol.Blob) ([]float32, error) {
	if dec == nil {
		dec = WAVDecoder{}
	}
	if blob == nil {
		return nil, services.Wrap(services.ErrDecodeFailed, "coordinator", "decode", decodeMessage, errors.New("no audio produced"))
	}
	data, err := protocol.ReadAll(blob)
	if err != nil {
		return nil, services.Wrap(services.ErrDecodeFailed, "coordinator", "decode", decodeMessage, err)
	}
	channels, err := dec.Decode(ctx, data, TargetSampleRate)
	if err != nil {
		return nil, services.Wrap(services.ErrDecodeFailed, "coordinator", "decode", decodeMessage, err)
	}
	mono := Downmix(channels)
	if len(mono) == 0 {
		return nil, services.Wrap(services.ErrDecodeFailed, "coordinator", "decode", decodeMessage, errors.New("no samples"))
	}
	return mono, nil
}
