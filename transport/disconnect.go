package transport

// disconnectState tracks the local side of graceful shutdown. disconnect() arms a countdown of ShutdownTickCount ticks; each
// subsequent tick re-emits the disconnect notice because the datagram it
// rides on may itself be lost. When the countdown reaches zero the
// connection signals onDisconnectComplete to the upper layer.
type disconnectState struct {
	active     bool
	reason     byte
	remoteInit bool // true if the peer's notice, not ours, started the countdown
	ticksLeft  int
	completed  bool
}

func (d *disconnectState) arm(reason byte, remoteInit bool) {
	if d.active {
		return
	}
	d.active = true
	d.reason = reason
	d.remoteInit = remoteInit
	d.ticksLeft = ShutdownTickCount
}

// shouldEmitNotice reports whether this tick must (re-)send the
// disconnect notice: once when first armed, then once per tick until the
// countdown expires.
func (d *disconnectState) shouldEmitNotice() bool {
	return d.active && !d.completed
}

// tick advances the countdown by one tick, returning true exactly once,
// the tick on which the countdown reaches zero and onDisconnectComplete
// must fire.
func (d *disconnectState) tick() bool {
	if !d.active || d.completed {
		return false
	}
	d.ticksLeft--
	if d.ticksLeft <= 0 {
		d.completed = true
		return true
	}
	return false
}

func (d *disconnectState) sendsBlocked() bool { return d.active }
