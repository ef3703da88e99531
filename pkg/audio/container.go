package audio

import "errors"

// ErrNotContainerStart is returned when the accumulated buffer does not
// begin with a recognizable EBML header, the signal AudioDecoder uses to
// detect a client-initiated header refresh.
var ErrNotContainerStart = errors.New("audio: buffer does not start with an EBML header")

// Minimal set of Matroska/WebM element IDs this demuxer understands. Only
// the elements needed to walk down to SimpleBlock payloads are named;
// everything else (Info, CodecPrivate, Cues, ...) is skipped as an opaque
// leaf once its size is known, or treated as open-ended when it is not.
const (
	idEBMLHeader  = 0x1A45DFA3
	idSegment     = 0x18538067
	idTracks      = 0x1654AE6B
	idTrackEntry  = 0xAE
	idCluster     = 0x1F43B675
	idSimpleBlock = 0xA3
)

// masterElements are container IDs this demuxer descends into looking for
// more elements, rather than treating as an opaque leaf to skip.
var masterElements = map[uint32]bool{
	idEBMLHeader: true,
	idSegment:    true,
	idTracks:     true,
	idTrackEntry: true,
	idCluster:    true,
}

// vintLength returns the number of octets an EBML variable-size integer
// occupies, derived from the position of the leading set bit in the first
// octet. Returns 0 if the first octet is all zero, which is invalid EBML.
func vintLength(first byte) int {
	for i := 0; i < 8; i++ {
		if first&(0x80>>uint(i)) != 0 {
			return i + 1
		}
	}
	return 0
}

// readElementID reads an EBML element ID, which retains its length marker
// bits as part of the value (unlike a size vint).
func readElementID(buf []byte) (id uint32, n int, ok bool) {
	if len(buf) == 0 {
		return 0, 0, false
	}
	length := vintLength(buf[0])
	if length == 0 || len(buf) < length {
		return 0, 0, false
	}
	var v uint32
	for i := 0; i < length; i++ {
		v = v<<8 | uint32(buf[i])
	}
	return v, length, true
}

// readDataSize reads an EBML size vint, masking off the marker bit. unknown
// reports the reserved "all data bits set" encoding Matroska muxers use for
// streamed elements whose length isn't known when the header is written
// (routine for Segment and Cluster coming out of a browser's MediaRecorder).
func readDataSize(buf []byte) (size uint64, n int, unknown bool, ok bool) {
	if len(buf) == 0 {
		return 0, 0, false, false
	}
	length := vintLength(buf[0])
	if length == 0 || len(buf) < length {
		return 0, 0, false, false
	}
	marker := byte(0x80) >> uint(length-1)
	masked := buf[0] &^ marker
	v := uint64(masked)
	for i := 1; i < length; i++ {
		v = v<<8 | uint64(buf[i])
	}
	maxUnknown := uint64(1)<<(7*uint(length)) - 1
	return v, length, v == maxUnknown, true
}

// ExtractPackets walks the full accumulated container buffer and returns
// every SimpleBlock payload (an Opus packet, framed with a leading track
// number vint, a 2-byte relative timecode, and a flags byte) seen so far, in
// stream order. Re-walking from byte zero on every call mirrors the
// documented cost tradeoff: the decoder accepts O(N) container re-parsing
// per ingest in exchange for a much simpler incremental demuxer, and relies
// on the sample-level tail-delta to keep downstream work O(1) amortized.
//
// A buffer that does not begin with an EBML header returns
// ErrNotContainerStart so the caller can treat incoming bytes as the start
// of a freshly restarted encoder stream.
func ExtractPackets(buf []byte) ([][]byte, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	id, _, ok := readElementID(buf)
	if !ok || id != idEBMLHeader {
		return nil, ErrNotContainerStart
	}

	var packets [][]byte
	walkChildren(buf, &packets)
	return packets, nil
}

// walkChildren scans a byte range for top-level EBML elements, recursing
// into recognized master elements and collecting SimpleBlock payloads.
// Elements that are incomplete (the declared size runs past the end of buf)
// are left for the next ingest; this is what makes partial-header and
// partial-cluster ingests return an empty-but-not-erroring result.
func walkChildren(buf []byte, packets *[][]byte) {
	pos := 0
	for pos < len(buf) {
		id, idLen, ok := readElementID(buf[pos:])
		if !ok {
			return
		}
		sizeOff := pos + idLen
		size, sizeLen, unknown, ok := readDataSize(buf[sizeOff:])
		if !ok {
			return
		}
		contentStart := sizeOff + sizeLen

		if unknown {
			// Open-ended master element (streamed Segment/Cluster): descend
			// into the remainder of the buffer and stop, there is no sibling
			// to resume scanning at.
			if masterElements[id] {
				walkChildren(buf[contentStart:], packets)
			}
			return
		}

		contentEnd := contentStart + int(size)
		if contentEnd > len(buf) {
			// Declared size extends past what we have; wait for more bytes.
			return
		}

		switch {
		case id == idSimpleBlock:
			if pkt, ok := simpleBlockPayload(buf[contentStart:contentEnd]); ok {
				*packets = append(*packets, pkt)
			}
		case masterElements[id]:
			walkChildren(buf[contentStart:contentEnd], packets)
		}

		pos = contentEnd
	}
}

// simpleBlockPayload strips a SimpleBlock's track-number vint, 2-byte signed
// relative timecode, and flags byte, returning the remaining frame data
// (the Opus packet for an audio-only, non-lbooped/non-lacing stream).
func simpleBlockPayload(block []byte) ([]byte, bool) {
	_, n, ok := readDataSize(block)
	if !ok || n+3 > len(block) {
		return nil, false
	}
	flags := block[n+2]
	if flags&0x06 != 0 {
		// Lacing is set; this demuxer only handles the no-lacing case the
		// browser's Opus-in-WebM recorder produces.
		return nil, false
	}
	return block[n+3:], true
}
