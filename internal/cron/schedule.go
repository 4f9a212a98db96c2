package cron

// AtRetryBackoffMs is how long a one-shot job that failed waits before it is
// due again.
const AtRetryBackoffMs int64 = 60_000

// IsDue reports whether job should fire at nowMs. It ignores Enabled; the
// timer filters disabled jobs before asking.
func IsDue(job *Job, nowMs int64) bool {
	next, ok := nextRunAt(job)
	return ok && nowMs >= next
}

// nextRunAt returns the earliest time job may fire.
func nextRunAt(job *Job) (int64, bool) {
	switch job.Schedule.Kind {
	case ScheduleEvery:
		if job.Schedule.EveryMs <= 0 {
			return 0, false
		}
		return job.Schedule.AnchorMs, true
	case ScheduleAt:
		at, err := job.Schedule.AtMs()
		if err != nil {
			return 0, false
		}
		st := job.State
		if st.LastStatus == StatusError && st.LastRunAtMs != nil {
			if retry := *st.LastRunAtMs + AtRetryBackoffMs; retry > at {
				return retry, true
			}
		}
		return at, true
	default:
		return 0, false
	}
}

// advanceSchedule applies the post-fire schedule transition. An every job is
// re-anchored on the fire time, never on the old anchor, so a late tick does
// not produce catch-up fires. An at job is disabled once it ran
// successfully; a failed one stays enabled and retries after the backoff.
func advanceSchedule(job *Job, firedAtMs int64, failed bool) {
	switch job.Schedule.Kind {
	case ScheduleEvery:
		job.Schedule.AnchorMs = firedAtMs + job.Schedule.EveryMs
	case ScheduleAt:
		if !failed {
			job.Enabled = false
		}
	}
	refreshNextRun(job)
}

func refreshNextRun(job *Job) {
	if !job.Enabled {
		job.State.NextRunAtMs = nil
		return
	}
	if next, ok := nextRunAt(job); ok {
		job.State.NextRunAtMs = int64Ptr(next)
		return
	}
	job.State.NextRunAtMs = nil
}
