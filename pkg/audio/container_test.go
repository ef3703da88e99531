package audio

import (
	"bytes"
	"testing"
)

// buildVint encodes v as an EBML size/ID octet sequence of exactly width
// bytes, for constructing synthetic test containers.
func buildVint(v uint64, width int) []byte {
	b := make([]byte, width)
	marker := byte(0x80) >> uint(width-1)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	b[0] |= marker
	return b
}

func buildElement(id uint32, idWidth int, content []byte) []byte {
	var buf bytes.Buffer
	buf.Write(buildVint(uint64(id), idWidth))
	buf.Write(buildVint(uint64(len(content)), 1))
	buf.Write(content)
	return buf.Bytes()
}

func buildSimpleBlock(trackNumber byte, payload []byte) []byte {
	var content bytes.Buffer
	content.WriteByte(0x80 | trackNumber) // track number vint, 1 byte
	content.Write([]byte{0x00, 0x00})     // relative timecode
	content.WriteByte(0x00)               // flags, no lacing
	content.Write(payload)
	return buildElement(idSimpleBlock, 1, content.Bytes())
}

func TestExtractPackets_HeaderRequired(t *testing.T) {
	_, err := ExtractPackets([]byte{0x00, 0x01, 0x02})
	if err != ErrNotContainerStart {
		t.Fatalf("expected ErrNotContainerStart, got %v", err)
	}
}

func TestExtractPackets_EmptyBuffer(t *testing.T) {
	packets, err := ExtractPackets(nil)
	if err != nil || packets != nil {
		t.Fatalf("expected nil, nil for an empty buffer, got %v, %v", packets, err)
	}
}

func TestExtractPackets_SingleSimpleBlock(t *testing.T) {
	header := buildElement(idEBMLHeader, 4, []byte{0x01, 0x02})
	block := buildSimpleBlock(1, []byte{0xAA, 0xBB, 0xCC})
	cluster := buildElement(idCluster, 4, block)
	segment := buildElement(idSegment, 4, cluster)

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(segment)

	packets, err := ExtractPackets(buf.Bytes())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if !bytes.Equal(packets[0], []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("unexpected packet payload: %x", packets[0])
	}
}

func TestExtractPackets_MultipleBlocksInOrder(t *testing.T) {
	header := buildElement(idEBMLHeader, 4, []byte{0x01})
	var clusterContent bytes.Buffer
	clusterContent.Write(buildSimpleBlock(1, []byte{0x01}))
	clusterContent.Write(buildSimpleBlock(1, []byte{0x02}))
	clusterContent.Write(buildSimpleBlock(1, []byte{0x03}))
	cluster := buildElement(idCluster, 4, clusterContent.Bytes())
	segment := buildElement(idSegment, 4, cluster)

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(segment)

	packets, err := ExtractPackets(buf.Bytes())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}
	for i, want := range [][]byte{{0x01}, {0x02}, {0x03}} {
		if !bytes.Equal(packets[i], want) {
			t.Fatalf("packet %d: got %x, want %x", i, packets[i], want)
		}
	}
}

func TestExtractPackets_TruncatedClusterYieldsWhatFits(t *testing.T) {
	header := buildElement(idEBMLHeader, 4, []byte{0x01})
	block := buildSimpleBlock(1, []byte{0xDE, 0xAD})
	cluster := buildElement(idCluster, 4, block)
	segment := buildElement(idSegment, 4, cluster)

	full := append(header, segment...)
	// Cut off the last 2 bytes of the payload: the declared Cluster size no
	// longer fits, so no packet should be extracted from the truncated tail.
	truncated := full[:len(full)-2]

	packets, err := ExtractPackets(truncated)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(packets) != 0 {
		t.Fatalf("expected 0 packets from a truncated cluster, got %d", len(packets))
	}
}
