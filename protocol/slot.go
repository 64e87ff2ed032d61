package protocol

import bridge "github.com/wippyai/krakatau-bridge"

// Slot holds at most one response buffer. Armed means the buffer is live
// and owned by the slot until taken.
type Slot struct {
	buf   bridge.Buffer
	armed bool
}

// Armed reports whether a response is held.
func (s *Slot) Armed() bool {
	return s.armed
}

// Length returns the held response length, or 0 when empty.
func (s *Slot) Length() uint32 {
	if !s.armed {
		return 0
	}
	return s.buf.Len
}

// Pointer returns the held response address, or Null when empty.
func (s *Slot) Pointer() uint32 {
	if !s.armed {
		return bridge.Null
	}
	return s.buf.Ptr
}

// Holds reports whether ptr is the address of the held response.
func (s *Slot) Holds(ptr uint32) bool {
	return s.armed && ptr != bridge.Null && s.buf.Ptr == ptr
}

// Arm stores buf. The slot must be empty.
func (s *Slot) Arm(buf bridge.Buffer) {
	if s.armed {
		panic("protocol: arming a slot that already holds a response")
	}
	s.buf = buf
	s.armed = true
}

// Take empties the slot and returns what it held.
func (s *Slot) Take() (bridge.Buffer, bool) {
	if !s.armed {
		return bridge.Buffer{}, false
	}
	buf := s.buf
	s.buf = bridge.Buffer{}
	s.armed = false
	return buf, true
}
