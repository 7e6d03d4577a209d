package transport

import "testing"

func TestRecvWaitQueueInsertOrderAndDuplicate(t *testing.T) {
	q := newRecvWaitQueue()
	for _, id := range []uint32{5, 3, 4} {
		n := &recvNode{id: id}
		n.eos = n
		inserted, dup := q.insert(n)
		if !inserted || dup {
			t.Fatalf("insert(%d): inserted=%v dup=%v", id, inserted, dup)
		}
	}
	n := &recvNode{id: 4}
	n.eos = n
	inserted, dup := q.insert(n)
	if inserted || !dup {
		t.Fatalf("re-insert(4): inserted=%v dup=%v, want duplicate", inserted, dup)
	}
	if q.len() != 3 {
		t.Fatalf("len = %d, want 3", q.len())
	}

	var ids []uint32
	for p := q.head; p != nil; p = p.next {
		ids = append(ids, p.id)
	}
	want := []uint32{3, 4, 5}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestRecvWaitQueueEosSpansMergedRun(t *testing.T) {
	q := newRecvWaitQueue()
	for _, id := range []uint32{10, 12, 11} {
		n := &recvNode{id: id}
		n.eos = n
		q.insert(n)
	}
	// 10, 11, 12 now form one contiguous run; every node's eos must point
	// at the run's last node (12).
	for p := q.head; p != nil; p = p.next {
		if p.eos.id != 12 {
			t.Errorf("node %d: eos = %d, want 12", p.id, p.eos.id)
		}
	}
}

func TestRecvWaitQueuePopContiguous(t *testing.T) {
	q := newRecvWaitQueue()
	for _, id := range []uint32{0, 1, 2, 5} {
		n := &recvNode{id: id}
		n.eos = n
		q.insert(n)
	}
	if got := q.popContiguous(1); got != nil {
		t.Fatalf("popContiguous(1) on a queue starting at 0 should fail, got %v", got)
	}
	run := q.popContiguous(0)
	if len(run) != 3 {
		t.Fatalf("popped %d nodes, want 3", len(run))
	}
	for i, n := range run {
		if n.id != uint32(i) {
			t.Errorf("run[%d].id = %d, want %d", i, n.id, i)
		}
	}
	if q.len() != 1 {
		t.Fatalf("remaining len = %d, want 1", q.len())
	}
	if q.head.id != 5 {
		t.Errorf("remaining head id = %d, want 5", q.head.id)
	}
}

func TestRecvWaitQueueCapRejectsBeyondWindow(t *testing.T) {
	q := newRecvWaitQueue()
	for i := uint32(0); i < OutOfOrderWindowCap; i++ {
		n := &recvNode{id: i + 100}
		n.eos = n
		inserted, dup := q.insert(n)
		if !inserted || dup {
			t.Fatalf("insert %d: inserted=%v dup=%v", i, inserted, dup)
		}
	}
	n := &recvNode{id: 999}
	n.eos = n
	inserted, dup := q.insert(n)
	if inserted || dup {
		t.Fatalf("insert at cap: inserted=%v dup=%v, want inserted=false dup=false", inserted, dup)
	}
	if q.len() != OutOfOrderWindowCap {
		t.Fatalf("len = %d, want %d", q.len(), OutOfOrderWindowCap)
	}
}

func TestRecvWaitQueueRuns(t *testing.T) {
	q := newRecvWaitQueue()
	for _, id := range []uint32{0, 1, 5, 6, 7, 20} {
		n := &recvNode{id: id}
		n.eos = n
		q.insert(n)
	}
	runs := q.runs()
	want := [][2]uint32{{0, 1}, {5, 7}, {20, 20}}
	if len(runs) != len(want) {
		t.Fatalf("runs = %v, want %v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("runs[%d] = %v, want %v", i, runs[i], want[i])
		}
	}
}
