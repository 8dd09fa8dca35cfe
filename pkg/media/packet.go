package media

// Packet carries one unit of compressed data. It is meant to be allocated once
// and reused: Clear empties it without giving up its storage.
type Packet struct {
	data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	StreamIndex int
	Key         bool
}

func NewPacket() *Packet {
	return &Packet{PTS: NoTimestamp, DTS: NoTimestamp}
}

// NewPacketFromData returns a packet that takes ownership of data.
func NewPacketFromData(data []byte) *Packet {
	p := NewPacket()
	p.SetData(data)
	return p
}

// SetData takes ownership of data. The caller must not modify it afterwards.
func (p *Packet) SetData(data []byte) {
	p.data = data
}

// CopyData copies data into the packet, reusing existing capacity.
func (p *Packet) CopyData(data []byte) {
	if cap(p.data) < len(data) {
		p.data = make([]byte, len(data))
	}
	p.data = p.data[:len(data)]
	copy(p.data, data)
}

// Grow makes the payload n bytes long and returns it for filling.
func (p *Packet) Grow(n int) []byte {
	if cap(p.data) < n {
		d := make([]byte, n)
		copy(d, p.data)
		p.data = d
	}
	p.data = p.data[:n]
	return p.data
}

func (p *Packet) Data() []byte {
	return p.data
}

func (p *Packet) Len() int {
	return len(p.data)
}

func (p *Packet) IsEmpty() bool {
	return len(p.data) == 0
}

func (p *Packet) HasPTS() bool {
	return p.PTS != NoTimestamp
}

func (p *Packet) HasDTS() bool {
	return p.DTS != NoTimestamp
}

// Clear empties the packet and resets its properties, keeping capacity.
func (p *Packet) Clear() {
	p.data = p.data[:0]
	p.PTS = NoTimestamp
	p.DTS = NoTimestamp
	p.Duration = 0
	p.StreamIndex = 0
	p.Key = false
}

// CopyProps copies everything but the payload from src.
func (p *Packet) CopyProps(src *Packet) {
	p.PTS = src.PTS
	p.DTS = src.DTS
	p.Duration = src.Duration
	p.StreamIndex = src.StreamIndex
	p.Key = src.Key
}

func (p *Packet) Clone() *Packet {
	c := NewPacket()
	c.CopyData(p.data)
	c.CopyProps(p)
	return c
}

// MoveTo transfers the payload and properties to dst and clears p.
func (p *Packet) MoveTo(dst *Packet) {
	dst.data = p.data
	dst.CopyProps(p)
	p.data = nil
	p.Clear()
}
