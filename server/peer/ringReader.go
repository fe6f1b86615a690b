package peer

import "github.com/touka-aoi/oneshot/core/buffer"

type RingReader struct {
	ring *buffer.RingBuffer
}

func NewRingReader(size int) *RingReader {
	if size <= 0 {
		size = 4096
	}
	return &RingReader{
		ring: buffer.NewRingBuffer(size),
	}
}

// Feed appends data, growing the ring when it runs out of room.
func (p *RingReader) Feed(data []byte) {
	p.ring.WriteGrow(data)
}

func (p *RingReader) Length() int {
	return p.ring.Length()
}

// Drain returns everything buffered and empties the reader.
func (p *RingReader) Drain() []byte {
	out := p.ring.PeekOut()
	if len(out) > 0 {
		p.ring.Advance(len(out))
	}
	return out
}
