package transport

// recvNode is one out-of-order arrival waiting in a stream's receive-wait
// queue. Stream-0 (unordered) placeholders carry no payload;
// only the ACK-ID matters for rollup advancement, since stream 0's DATA is
// delivered immediately on arrival regardless of order.
type recvNode struct {
	id          uint32
	payload     []byte
	sop         byte
	placeholder bool // stream-0 zero-payload entry: already delivered on first arrival, never redelivered
	next        *recvNode
	eos         *recvNode // end-of-sequence: last node of the contiguous run starting here
}

// recvWaitQueue is the per-stream out-of-order arrival queue with an eos
// skip pointer on each node. A hard cap limits its size;
// arrivals beyond the cap are dropped.
type recvWaitQueue struct {
	head *recvNode
	size int
}

func newRecvWaitQueue() *recvWaitQueue {
	return &recvWaitQueue{}
}

func (q *recvWaitQueue) len() int { return q.size }

// insert adds n in ascending-id order, maintaining eos pointers across
// the merged run. Returns (inserted, duplicate): duplicate is true if id
// was already queued (n is discarded); inserted is false if the queue is
// at cap and id is new (caller must treat this as a dropped arrival).
func (q *recvWaitQueue) insert(n *recvNode) (inserted bool, duplicate bool) {
	var prev *recvNode
	cur := q.head
	for cur != nil && cur.id < n.id {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.id == n.id {
		return false, true
	}
	if q.size >= OutOfOrderWindowCap {
		return false, false
	}

	n.next = cur
	if prev != nil {
		prev.next = n
	} else {
		q.head = n
	}
	q.size++

	// Recompute the eos pointers for the merged contiguous run containing
	// n: walk back to the run's start and forward to its end, then stamp
	// every node in between with the run's end. Bounded by the window
	// cap, so this stays cheap even though it is not the original's
	// purely incremental update.
	start := q.runStart(n)
	end := q.runEnd(n)
	for p := start; ; p = p.next {
		p.eos = end
		if p == end {
			break
		}
	}
	return true, false
}

// runStart walks from the queue head tracking the most recent run
// boundary, stopping once it reaches n.
func (q *recvWaitQueue) runStart(n *recvNode) *recvNode {
	runStart := q.head
	prevID := q.head.id
	for p := q.head; p != nil; p = p.next {
		if p != q.head && p.id != prevID+1 {
			runStart = p
		}
		prevID = p.id
		if p == n {
			return runStart
		}
	}
	return runStart
}

func (q *recvWaitQueue) runEnd(n *recvNode) *recvNode {
	end := n
	for end.next != nil && end.next.id == end.id+1 {
		end = end.next
	}
	return end
}

// popContiguous removes and returns the maximal run of nodes from the
// head of the queue whose ids begin at next and increase by one with no
// gap, using the eos skip pointer so this runs in time proportional to
// the run length rather than the whole queue.
func (q *recvWaitQueue) popContiguous(next uint32) []*recvNode {
	if q.head == nil || q.head.id != next {
		return nil
	}
	end := q.head.eos
	var result []*recvNode
	for n := q.head; ; n = n.next {
		result = append(result, n)
		if n == end {
			q.head = n.next
			break
		}
	}
	q.size -= len(result)
	return result
}

// runs returns each maximal contiguous run currently queued, in ascending
// order, as (start, end) id pairs - used for selective-ACK RANGE emission
//.
func (q *recvWaitQueue) runs() [][2]uint32 {
	var out [][2]uint32
	n := q.head
	for n != nil {
		end := n.eos
		out = append(out, [2]uint32{n.id, end.id})
		n = end.next
	}
	return out
}
