package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Codec errors. Conversion failures are local and fatal only to the frame
// being processed: callers drop the frame, never the session.
var (
	// ErrMalformedBase64 reports input that is not valid standard base64.
	ErrMalformedBase64 = fmt.Errorf("audio: malformed base64 payload")

	// ErrOddPCMLength reports a byte buffer whose length is not a multiple
	// of two and therefore cannot hold s16le samples.
	ErrOddPCMLength = fmt.Errorf("audio: pcm byte length is not a multiple of 2")
)

// EncodeBase64 encodes raw bytes to standard base64 text, the wire format of
// the realtime channel. Pure and deterministic.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard base64 text back to raw bytes. Returns
// ErrMalformedBase64 when the input is not valid base64.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBase64, err)
	}
	return b, nil
}

// PCM16ToFloat interprets b as little-endian signed 16-bit samples and scales
// each linearly into [-1.0, 1.0) by dividing by 32768. Returns ErrOddPCMLength
// when len(b) is odd.
func PCM16ToFloat(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCMLength, len(b))
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(b[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out, nil
}

// FloatToPCM16 is the inverse transform: each sample is scaled by 32768 and
// clamped to the signed 16-bit range. Used on the capture path before
// transmission.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodeFrame decodes a base64 channel payload into a Frame at the given
// sample rate. A zero-length payload yields a zero-length frame; the caller
// treats it as a no-op.
func DecodeFrame(payload string, sampleRate int) (Frame, error) {
	b, err := DecodeBase64(payload)
	if err != nil {
		return Frame{}, err
	}
	if len(b)%2 != 0 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrOddPCMLength, len(b))
	}
	return Frame{Data: b, SampleRate: sampleRate}, nil
}
