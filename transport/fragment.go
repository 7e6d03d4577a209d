package transport

// fragmentSlot reassembles one fragmented message on the receive side
//. A totalLength of HugeSentinel marks a streamed huge
// transfer whose true length is unknown up front; in that mode buffer
// grows chunk by chunk and complete() never fires from append alone -
// the caller (connection.go) closes it out when a SOP other than FRAG
// arrives on the same stream.
type fragmentSlot struct {
	active      bool
	huge        bool
	totalLength int
	buffer      []byte
}

func (s *fragmentSlot) reset() {
	s.active = false
	s.huge = false
	s.totalLength = 0
	s.buffer = nil
}

// begin starts reassembly for a new fragmented message. totalLength is the
// value carried in the fragment-start field; HugeSentinel selects streamed
// mode.
func (s *fragmentSlot) begin(totalLength uint16) {
	s.active = true
	s.huge = totalLength == HugeSentinel
	if s.huge {
		s.totalLength = 0
		s.buffer = s.buffer[:0]
	} else {
		s.totalLength = int(totalLength)
		if cap(s.buffer) < s.totalLength {
			s.buffer = make([]byte, 0, s.totalLength)
		} else {
			s.buffer = s.buffer[:0]
		}
	}
}

// append adds the next chunk of payload to the slot. complete reports
// whether the assembled message has reached its declared length; always
// false in streamed (huge) mode, since that mode has no declared length.
func (s *fragmentSlot) append(chunk []byte) (complete bool) {
	s.buffer = append(s.buffer, chunk...)
	if s.huge {
		return false
	}
	return len(s.buffer) >= s.totalLength
}

// splitSizes computes the payload size of each outbound fragment chunk
// for a message of length total bytes, given the first chunk's available
// headroom (the cluster buffer's remaining space at the moment
// fragmentation begins) and the maximum payload any later chunk may carry
// (MTU minus headers). Grounded on original_source's WriteSendQueueNode
// fragmentation loop (Transport.cpp:1714-1905) and generalized in the
// style of fragglet-ipxbox's fragmentFrame splitter.
func splitSizes(total, firstHeadroom, maxPayload int) []int {
	if total <= 0 {
		return nil
	}
	var sizes []int
	remaining := total
	headroom := firstHeadroom
	if headroom > maxPayload {
		headroom = maxPayload
	}
	if headroom < FragThreshold {
		headroom = maxPayload
	}
	first := headroom
	if first > remaining {
		first = remaining
	}
	if first <= 0 {
		first = maxPayload
		if first > remaining {
			first = remaining
		}
	}
	sizes = append(sizes, first)
	remaining -= first
	for remaining > 0 {
		chunk := maxPayload
		if chunk > remaining {
			chunk = remaining
		}
		sizes = append(sizes, chunk)
		remaining -= chunk
	}
	return sizes
}
