package main

// ebmlMux builds a minimal Opus-in-WebM stream recognized by
// pkg/audio.ExtractPackets: an EBML header, a Segment/Tracks preamble
// written once, and one open-ended Cluster that every subsequent
// SimpleBlock is appended into. It mirrors what a browser's
// MediaRecorder emits for an Opus track, trimmed to the elements the
// server-side decoder actually inspects.
type ebmlMux struct {
	trackNumber byte
	timecode    uint16
	opened      bool
}

var (
	idEBMLHeader  = []byte{0x1A, 0x45, 0xDF, 0xA3}
	idSegment     = []byte{0x18, 0x53, 0x80, 0x67}
	idTracks      = []byte{0x16, 0x54, 0xAE, 0x6B}
	idTrackEntry  = []byte{0xAE}
	idTrackNumber = []byte{0xD7}
	idTrackUID    = []byte{0x73, 0xC5}
	idTrackType   = []byte{0x83}
	idCodecID     = []byte{0x86}
	idCluster     = []byte{0x1F, 0x43, 0xB6, 0x75}
	idSimpleBlock = []byte{0xA3}
)

// vint encodes value as an EBML variable-length integer occupying
// exactly length bytes, the length's leading marker bit set.
func vint(value uint64, length int) []byte {
	full := (uint64(1) << uint(7*length)) | value
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(full)
		full >>= 8
	}
	return buf
}

// unknownSize is the reserved all-ones vint meaning "read until the
// buffer ends", used for the Segment and Cluster that this muxer never
// closes.
func unknownSize(length int) []byte {
	return vint((uint64(1)<<uint(7*length))-1, length)
}

func element(id []byte, content []byte) []byte {
	out := append([]byte{}, id...)
	out = append(out, vint(uint64(len(content)), 1+byteLenFor(len(content)))...)
	out = append(out, content...)
	return out
}

// byteLenFor picks a vint length with headroom for typical small
// elements; sizes here are all far under 2^21.
func byteLenFor(n int) int {
	switch {
	case n < 1<<7-1:
		return 0
	case n < 1<<14-1:
		return 1
	default:
		return 2
	}
}

// header returns the EBML header plus the Segment/Tracks preamble and
// opens the Cluster that subsequent frames are appended into. Call
// once per stream.
func (m *ebmlMux) header(trackNumber byte) []byte {
	m.trackNumber = trackNumber
	m.opened = true

	trackEntry := element(idTrackEntry, concat(
		element(idTrackNumber, []byte{trackNumber}),
		element(idTrackUID, []byte{trackNumber}),
		element(idTrackType, []byte{2}), // 2 = audio
		element(idCodecID, []byte("A_OPUS")),
	))
	tracks := element(idTracks, trackEntry)

	segmentContent := append(unknownSize(4), tracks...)
	segment := append(append([]byte{}, idSegment...), segmentContent...)

	out := append([]byte{}, element(idEBMLHeader, nil)...)
	out = append(out, segment...)
	out = append(out, idCluster...)
	out = append(out, unknownSize(4)...)
	return out
}

// frame wraps one Opus packet in a SimpleBlock and appends it to the
// already-open Cluster. relTimecode is the sample-relative timecode in
// milliseconds since the Cluster started; flags carry no lacing bits,
// matching what simpleBlockPayload in the server's decoder requires.
func (m *ebmlMux) frame(packet []byte, relTimecodeMS uint16) []byte {
	content := make([]byte, 0, 4+len(packet))
	content = append(content, vint(uint64(m.trackNumber), 1)...)
	content = append(content, byte(relTimecodeMS>>8), byte(relTimecodeMS))
	content = append(content, 0x80) // flags: keyframe, no lacing
	content = append(content, packet...)
	return element(idSimpleBlock, content)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
