package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Decoder's native rate matches the browser-side Opus-in-WebM encoder this
// module targets: 48kHz, mono or stereo depending on the capture device.
// Output is always 16kHz mono, the rate downstream ASR consumes.
const (
	nativeSampleRate = 48000
	outputSampleRate = 16000
	decimationFactor = nativeSampleRate / outputSampleRate // 3

	// opusFrameSize is the maximum samples-per-channel gopus should allocate
	// for a decoded frame; Opus frames up to 120ms at 48kHz are legal, so
	// this is sized generously rather than tied to one fixed frame duration.
	opusFrameSize = 48000 * 120 / 1000
)

// AudioDecoder incrementally decodes a growing Opus-in-WebM byte stream into
// 16kHz mono PCM, returning only previously-unseen samples on each ingest.
// It holds the entire received byte prefix and a running sample-emission
// cursor, matching the session's audio container state invariant: decoded
// PCM length is non-decreasing, and samplesReturned never exceeds it.
type AudioDecoder struct {
	buf             []byte
	samplesReturned int

	channels int

	logger func(format string, args ...interface{})
}

// NewAudioDecoder builds a decoder for the given channel count (1 or 2; a
// browser's getUserMedia capture is usually mono, but stereo is downmixed).
func NewAudioDecoder(channels int, logf func(format string, args ...interface{})) (*AudioDecoder, error) {
	if channels != 1 && channels != 2 {
		channels = 1
	}
	// Validate the configuration against gopus eagerly rather than only on
	// the first decodePackets call.
	if _, err := gopus.NewDecoder(nativeSampleRate, channels); err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &AudioDecoder{channels: channels, logger: logf}, nil
}

// Ingest appends encoded bytes and returns any newly available 16kHz mono
// PCM samples. It never returns the same sample twice within the life of
// one encoded stream (see Reset). A partial container header, or a
// mid-stream parse failure that isn't recognized as a header restart,
// yields an empty slice rather than an error.
func (d *AudioDecoder) Ingest(data []byte) ([]float32, error) {
	d.buf = append(d.buf, data...)

	packets, err := ExtractPackets(d.buf)
	if err == ErrNotContainerStart {
		headerID := []byte{0x1A, 0x45, 0xDF, 0xA3}
		if len(d.buf) == len(data) ||
			(len(d.buf) < len(headerID) && string(d.buf) == string(headerID[:len(d.buf)])) {
			// First bytes of the session, or an EBML header ID still split
			// across ingests; they aren't a valid header yet, wait for more.
			return nil, nil
		}
		// The client has restarted its encoder (periodic header refresh).
		// Reprime from the new header and retry once.
		d.logger("audio: header refresh detected, resetting decoder")
		d.Reset()
		d.buf = append(d.buf[:0], data...)
		packets, err = ExtractPackets(d.buf)
		if err != nil {
			return nil, nil
		}
	} else if err != nil {
		d.logger("audio: container decode warning: %v", err)
		return nil, nil
	}

	pcm48, err := d.decodePackets(packets)
	if err != nil {
		d.logger("audio: opus decode warning: %v", err)
		return nil, nil
	}

	pcm16 := decimate(pcm48, decimationFactor)
	if d.samplesReturned > len(pcm16) {
		// Defensive: should not happen given the monotonic invariant, but
		// never emit a negative-length slice.
		d.samplesReturned = len(pcm16)
	}
	fresh := pcm16[d.samplesReturned:]
	d.samplesReturned = len(pcm16)

	out := make([]float32, len(fresh))
	copy(out, fresh)
	return out, nil
}

// decodePackets decodes every Opus packet from scratch against a fresh
// decoder state, downmixing to mono. Opus decoder state (e.g. packet-loss
// concealment history) only matters frame-to-frame within one call; since
// the full packet list is re-decoded every ingest, a fresh decoder avoids
// feeding the same frames through the stateful decoder more than once.
func (d *AudioDecoder) decodePackets(packets [][]byte) ([]float32, error) {
	dec, err := gopus.NewDecoder(nativeSampleRate, d.channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	var out []float32
	for _, pkt := range packets {
		samples, err := dec.Decode(pkt, opusFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("opus decode: %w", err)
		}
		out = append(out, downmixToMono(samples, d.channels)...)
	}
	return out, nil
}

// downmixToMono converts interleaved int16 PCM to mono float32 in [-1, 1].
func downmixToMono(samples []int16, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		for i, s := range samples {
			out[i] = float32(s) / 32768.0
		}
		return out
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		out[i] = float32(sum) / float32(channels) / 32768.0
	}
	return out
}

// decimate performs plain decimation by factor (no anti-alias filter): it
// keeps every factor-th sample. The component design accepts the aliasing
// tradeoff because downstream ASR consumes 16kHz input regardless.
func decimate(samples []float32, factor int) []float32 {
	if factor <= 1 {
		return samples
	}
	out := make([]float32, 0, len(samples)/factor+1)
	for i := 0; i < len(samples); i += factor {
		out = append(out, samples[i])
	}
	return out
}

// Reset discards the buffered bytes and the sample-emission cursor. Called
// when the client signals the start of a new encoded stream.
func (d *AudioDecoder) Reset() {
	d.buf = d.buf[:0]
	d.samplesReturned = 0
}

// Close is a no-op: no Opus decoder is held between calls (decodePackets
// builds a fresh one each time), so there is nothing to release. It is
// provided for interface symmetry with other capabilities.
func (d *AudioDecoder) Close() error {
	return nil
}

// Float32ToPCM16 converts float32 samples in [-1, 1] to little-endian int16
// PCM bytes, the format ASR providers hand to NewWavBuffer.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
