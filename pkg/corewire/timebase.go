// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

// Timebase is a monotonic microsecond counter advanced explicitly by the
// host on every tick. It carries no wall-clock meaning; only elapsed time
// between two readings is meaningful.
type Timebase struct {
	nowUs uint64
}

// Step advances the clock by deltaUs microseconds.
func (t *Timebase) Step(deltaUs uint32) {
	t.nowUs += uint64(deltaUs)
}

// NowUs returns the current microsecond count.
func (t *Timebase) NowUs() uint64 {
	return t.nowUs
}

// Elapsed reports whether more than budgetUs microseconds have passed
// since the given timestamp.
func (t *Timebase) Elapsed(since uint64, budgetUs uint64) bool {
	return t.nowUs-since > budgetUs
}
