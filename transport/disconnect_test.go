package transport

import "testing"

func TestDisconnectStateArmIdempotent(t *testing.T) {
	var d disconnectState
	d.arm(ReasonUserClosed, false)
	if !d.active || d.reason != ReasonUserClosed || d.remoteInit {
		t.Fatalf("unexpected state after arm: %+v", d)
	}
	d.arm(ReasonTimeout, true)
	if d.reason != ReasonUserClosed || d.remoteInit {
		t.Errorf("second arm should be a no-op, got %+v", d)
	}
}

func TestDisconnectStateCountdown(t *testing.T) {
	var d disconnectState
	d.arm(ReasonUserClosed, false)
	for i := 0; i < ShutdownTickCount-1; i++ {
		if d.tick() {
			t.Fatalf("tick %d fired early", i)
		}
	}
	if !d.tick() {
		t.Fatal("final tick should return true")
	}
	if !d.completed {
		t.Error("completed should be true after countdown reaches zero")
	}
	if d.tick() {
		t.Error("tick after completion should not fire again")
	}
}

func TestDisconnectStateSendsBlocked(t *testing.T) {
	var d disconnectState
	if d.sendsBlocked() {
		t.Error("fresh state should not block sends")
	}
	d.arm(ReasonServerFull, false)
	if !d.sendsBlocked() {
		t.Error("armed state should block sends")
	}
}
