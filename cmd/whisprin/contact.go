package main

// contactTracker is the per-provider contact state machine:
//
//	Idle --(contact begin)--> Contact   emits PenDown(pressure)
//	Contact --(|Δpressure| > 0.01)--> Contact   emits PenMove(pressure)
//	Contact --(contact end)--> Idle     emits PenUp
//
// A contact end while already Idle is a no-op. Pressure deltas at or below
// the suppression threshold produce no event, and the reference pressure
// only advances on emitted moves so slow drifts still accumulate into one.
//
// Not thread-safe by design: each provider's OS mechanism delivers on a
// single callback thread, and update runs synchronously there. No
// allocation, locking, or logging happens on this path.
type contactTracker struct {
	inContact    bool
	lastPressure float64
}

// update feeds one decoded (contact, pressure) sample through the state
// machine, invoking emit for each resulting event.
func (t *contactTracker) update(contact bool, pressure float64, emit func(PenEvent)) {
	pressure = clampPressure(pressure)

	switch {
	case contact && !t.inContact:
		t.inContact = true
		t.lastPressure = pressure
		emit(PenDown{Pressure: pressure})

	case contact && t.inContact:
		delta := pressure - t.lastPressure
		if delta < 0 {
			delta = -delta
		}
		if delta > minPressureDelta+pressureDeltaSlack {
			t.lastPressure = pressure
			emit(PenMove{Pressure: pressure})
		}

	case !contact && t.inContact:
		t.inContact = false
		t.lastPressure = 0
		emit(PenUp{})

	default:
		// Up while Idle: nothing to do.
	}
}

// reset returns the tracker to Idle without emitting. Called on provider Stop.
func (t *contactTracker) reset() {
	t.inContact = false
	t.lastPressure = 0
}
