package actor

import (
	"container/heap"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxTimerDelay is the largest delay a single time.Timer can reliably
// represent (32-bit millisecond duration limits on some platforms);
// longer delays are chunked into re-armed segments (spec §4.5).
const maxTimerDelay = 24*time.Hour*24 + 19*time.Hour // ~24.8 days

// scheduleHeap is a container/heap.Interface over ScheduleEntry ordered by
// DueAtUnix, giving the instance O(log n) insert and O(1) peek-earliest.
type scheduleHeap []ScheduleEntry

func (h scheduleHeap) Len() int            { return len(h) }
func (h scheduleHeap) Less(i, j int) bool  { return h[i].DueAtUnix < h[j].DueAtUnix }
func (h scheduleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scheduleHeap) Push(x any)         { *h = append(*h, x.(ScheduleEntry)) }
func (h *scheduleHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ScheduleHandle is the public `schedule.at` / `schedule.after` surface
// from spec §4.5, handed to actions via ActionContext.Schedule().
type ScheduleHandle struct {
	inst *Instance
}

// At schedules actionName(payload) to run at t.
func (s *ScheduleHandle) At(t time.Time, actionName string, payload any) string {
	return s.inst.scheduleEntry(t, actionName, payload)
}

// After schedules actionName(payload) to run after delay.
func (s *ScheduleHandle) After(delay time.Duration, actionName string, payload any) string {
	return s.inst.scheduleEntry(time.Now().Add(delay), actionName, payload)
}

// scheduleEntry inserts a new durable alarm and, if it is now the
// earliest, re-arms the single OS timer. Must run on the instance's own
// loop goroutine.
func (inst *Instance) scheduleEntry(t time.Time, actionName string, payload any) string {
	entry := ScheduleEntry{
		ID:         uuid.NewString(),
		DueAtUnix:  t.UnixMilli(),
		ActionName: actionName,
		Payload:    payload,
	}
	heap.Push(&inst.schedule, entry)
	inst.markDirty()
	inst.rearmAlarm()
	return entry.ID
}

// rearmAlarm stops any pending timer and arms a new one for the earliest
// pending schedule entry, chunking delays beyond maxTimerDelay. Must run
// on the instance's own loop goroutine.
func (inst *Instance) rearmAlarm() {
	if inst.alarmTimer != nil {
		inst.alarmTimer.Stop()
		inst.alarmTimer = nil
	}
	if inst.schedule.Len() == 0 {
		return
	}
	earliest := inst.schedule[0]
	delay := time.Until(time.UnixMilli(earliest.DueAtUnix))
	if delay < 0 {
		delay = 0
	}
	fire := delay
	if fire > maxTimerDelay {
		fire = maxTimerDelay
	}
	inst.alarmTimer = time.AfterFunc(fire, func() {
		inst.submit(inst.bgCtx, func() (any, error) {
			inst.onAlarmFire()
			return nil, nil
		})
	})
}

// onAlarmFire pops every due entry (dueAt <= now) in ascending order and
// dispatches its action, then rearms for whatever remains. A panicking or
// erroring action is logged and does not stop the sweep. Must run on the
// instance's own loop goroutine.
func (inst *Instance) onAlarmFire() {
	now := time.Now().UnixMilli()
	var due []ScheduleEntry
	for inst.schedule.Len() > 0 && inst.schedule[0].DueAtUnix <= now {
		due = append(due, heap.Pop(&inst.schedule).(ScheduleEntry))
	}
	if len(due) > 0 {
		inst.markDirty()
	}
	actx := &ActionContext{ctx: inst.bgCtx, inst: inst}
	for _, entry := range due {
		fn, ok := inst.def.Actions[entry.ActionName]
		if !ok {
			inst.log.Warn("alarm fired for unknown action", zap.String("action", entry.ActionName))
			continue
		}
		var args []any
		if entry.Payload != nil {
			args = []any{entry.Payload}
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					inst.log.Error("alarm action panicked", zap.String("action", entry.ActionName), zap.Any("panic", r))
				}
			}()
			if _, err := fn(actx, args); err != nil {
				inst.log.Warn("alarm action returned error", zap.String("action", entry.ActionName), zap.Error(err))
			}
		}()
	}
	inst.rearmAlarm()
}
