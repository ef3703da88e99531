package audio

import (
	"math"
	"math/rand"
	"testing"

	"layeh.com/gopus"
)

// decoderFrameSize matches the 20ms/48kHz frame the demo client and browser
// encoders both use (cmd/democlient/main.go's frameSize).
const decoderFrameSize = 960

// encodeTone produces n real Opus packets (not synthetic garbage) encoding a
// pure sine wave at freqHz, so AudioDecoder.Ingest exercises an actual gopus
// decode rather than silently swallowing malformed frames.
func encodeTone(t *testing.T, n int, freqHz float64) [][]byte {
	t.Helper()
	enc, err := gopus.NewEncoder(nativeSampleRate, 1, gopus.Audio)
	if err != nil {
		t.Fatalf("create opus encoder: %v", err)
	}
	packets := make([][]byte, n)
	for i := 0; i < n; i++ {
		pcm := make([]int16, decoderFrameSize)
		for s := range pcm {
			sampleT := float64(i*decoderFrameSize+s) / nativeSampleRate
			pcm[s] = int16(8000 * math.Sin(2*math.Pi*freqHz*sampleT))
		}
		pkt, err := enc.Encode(pcm, decoderFrameSize, decoderFrameSize*2)
		if err != nil {
			t.Fatalf("opus encode packet %d: %v", i, err)
		}
		packets[i] = pkt
	}
	return packets
}

// sizeVintWidth picks the smallest EBML size-vint width that can hold
// length without colliding with the reserved all-ones "unknown size"
// marker, the same sizing cmd/democlient/webm.go's byteLenFor does.
// container_test.go's buildElement hardcodes a 1-byte size vint, which is
// too narrow once a Cluster holds more than a couple of real Opus packets.
func sizeVintWidth(length int) int {
	switch {
	case length < 1<<7-1:
		return 1
	case length < 1<<14-1:
		return 2
	case length < 1<<21-1:
		return 3
	default:
		return 4
	}
}

// muxElement wraps content in an EBML element with an idWidth-byte ID and a
// size vint sized to fit content, reusing buildVint (already correct for
// arbitrary widths) rather than container_test.go's fixed-1-byte buildElement.
func muxElement(id uint32, idWidth int, content []byte) []byte {
	out := buildVint(uint64(id), idWidth)
	out = append(out, buildVint(uint64(len(content)), sizeVintWidth(len(content)))...)
	out = append(out, content...)
	return out
}

// muxSimpleBlock frames one Opus packet exactly as simpleBlockPayload in
// container.go expects to unframe it: a 1-byte track vint, a 2-byte
// relative timecode, a no-lacing flags byte, then the packet.
func muxSimpleBlock(trackNumber byte, packet []byte) []byte {
	content := make([]byte, 0, 4+len(packet))
	content = append(content, 0x80|trackNumber, 0x00, 0x00, 0x00)
	content = append(content, packet...)
	return muxElement(idSimpleBlock, 1, content)
}

// muxStream wraps packets in a single EBML header + Segment + Cluster, the
// same structure TestExtractPackets_SingleSimpleBlock builds, sized for
// real (not single-byte) Opus packet payloads.
func muxStream(trackNumber byte, packets [][]byte) []byte {
	header := muxElement(idEBMLHeader, 4, []byte{0x01})

	var clusterContent []byte
	for _, pkt := range packets {
		clusterContent = append(clusterContent, muxSimpleBlock(trackNumber, pkt)...)
	}
	cluster := muxElement(idCluster, 4, clusterContent)
	segment := muxElement(idSegment, 4, cluster)

	out := append([]byte{}, header...)
	out = append(out, segment...)
	return out
}

// chunkRandomly splits buf into a random sequence of non-empty slices (1 to
// maxChunk bytes each) so callers can feed AudioDecoder.Ingest across
// arbitrary chunk boundaries, including boundaries that land mid-element.
func chunkRandomly(rng *rand.Rand, buf []byte, maxChunk int) [][]byte {
	var chunks [][]byte
	for len(buf) > 0 {
		n := 1 + rng.Intn(maxChunk)
		if n > len(buf) {
			n = len(buf)
		}
		chunks = append(chunks, buf[:n])
		buf = buf[n:]
	}
	return chunks
}

func oneShotDecode(t *testing.T, stream []byte) []float32 {
	t.Helper()
	dec, err := NewAudioDecoder(1, nil)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	pcm, err := dec.Ingest(stream)
	if err != nil {
		t.Fatalf("one-shot ingest: %v", err)
	}
	return pcm
}

func feedChunked(t *testing.T, dec *AudioDecoder, chunks [][]byte) []float32 {
	t.Helper()
	var out []float32
	for _, c := range chunks {
		pcm, err := dec.Ingest(c)
		if err != nil {
			t.Fatalf("chunked ingest: %v", err)
		}
		out = append(out, pcm...)
	}
	return out
}

func assertEqualPCM(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("pcm length mismatch: got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pcm sample %d mismatch: got %v, want %v", i, got[i], want[i])
		}
	}
}

// TestAudioDecoder_IngestRandomChunkBoundariesMatchesOneShot property-tests
// that splitting one encoded stream across arbitrary chunk boundaries never
// changes, duplicates, or drops a sample relative to feeding it in one call.
func TestAudioDecoder_IngestRandomChunkBoundariesMatchesOneShot(t *testing.T) {
	packets := encodeTone(t, 25, 440)
	stream := muxStream(1, packets)
	want := oneShotDecode(t, stream)
	if len(want) == 0 {
		t.Fatal("expected the reference one-shot decode to yield samples")
	}

	for trial, seed := range []int64{1, 2, 3, 4} {
		rng := rand.New(rand.NewSource(seed))
		maxChunk := 1 + trial*5 // vary boundary granularity across trials
		chunks := chunkRandomly(rng, stream, maxChunk)

		dec, err := NewAudioDecoder(1, nil)
		if err != nil {
			t.Fatalf("new decoder: %v", err)
		}
		got := feedChunked(t, dec, chunks)
		assertEqualPCM(t, got, want)
	}
}

// TestAudioDecoder_HeaderRestartProducesFreshDecodeNoDuplicatePrefix covers
// scenario 6, decoder header refresh: Reset is the signal a new encoded
// stream is starting (Participant.ResetAudioState calls it when a room
// leaves the active phase), and the samples emitted after Reset must be exactly the
// second stream's decode, not the first stream's tail repeated or dropped.
func TestAudioDecoder_HeaderRestartProducesFreshDecodeNoDuplicatePrefix(t *testing.T) {
	first := muxStream(1, encodeTone(t, 10, 440))
	second := muxStream(1, encodeTone(t, 14, 660))

	wantFirst := oneShotDecode(t, first)
	wantSecond := oneShotDecode(t, second)

	rng := rand.New(rand.NewSource(7))
	dec, err := NewAudioDecoder(1, nil)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}

	gotFirst := feedChunked(t, dec, chunkRandomly(rng, first, 11))
	assertEqualPCM(t, gotFirst, wantFirst)

	dec.Reset()

	gotSecond := feedChunked(t, dec, chunkRandomly(rng, second, 17))
	assertEqualPCM(t, gotSecond, wantSecond)

	// The two tones decode to different samples; a duplicated prefix would
	// show up as gotSecond's head matching wantFirst's instead of wantSecond's.
	if len(gotSecond) > 0 && len(wantFirst) > 0 && gotSecond[0] == wantFirst[0] {
		t.Fatal("second stream's decode looks like it repeated the first stream's samples")
	}
}

// TestAudioDecoder_MidStreamAutoReprime exercises the ErrNotContainerStart
// branch in Ingest directly (decoder.go's "header refresh detected" path):
// an incomplete, never-valid header prefix followed by a genuinely new
// complete container must reprime and decode the new stream, not wedge.
func TestAudioDecoder_MidStreamAutoReprime(t *testing.T) {
	stream := muxStream(1, encodeTone(t, 8, 550))
	want := oneShotDecode(t, stream)

	dec, err := NewAudioDecoder(1, nil)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}

	// A few bytes that never complete a valid EBML header.
	if pcm, err := dec.Ingest([]byte{0x00, 0x01}); err != nil || len(pcm) != 0 {
		t.Fatalf("expected a silent empty result for a bogus partial header, got %v, %v", pcm, err)
	}

	// Now feed the real stream; the buffered bogus prefix makes buf[0] stop
	// matching the EBML header ID, driving the reprime path at decoder.go:72.
	var got []float32
	rng := rand.New(rand.NewSource(3))
	for _, chunk := range chunkRandomly(rng, stream, 13) {
		pcm, err := dec.Ingest(chunk)
		if err != nil {
			t.Fatalf("ingest after bogus prefix: %v", err)
		}
		got = append(got, pcm...)
	}
	assertEqualPCM(t, got, want)
}
