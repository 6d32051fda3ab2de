// Package alarm implements C9: periodic evaluation of saved threshold
// queries against the index, a trigger/acknowledge/resolve state
// machine per alarm, and notification dispatch.
package alarm

import (
	"context"
	"sync"
	"time"

	"logvault/internal/metrics"
	"logvault/internal/query"
	"logvault/internal/search"
	"logvault/pkg/types"

	apperrors "logvault/pkg/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is where alarms and their events live. The HTTP CRUD handlers
// and the evaluator both read and write through it.
type Store interface {
	ListAlarms() []types.Alarm
	GetAlarm(id string) (types.Alarm, bool)

	// ActiveEvent returns the most recent non-resolved event for an
	// alarm, if any, so the evaluator can tell firing from already-firing.
	ActiveEvent(alarmID string) (types.AlarmEvent, bool)
	SaveEvent(types.AlarmEvent)
	Events(alarmID string) []types.AlarmEvent
	AllEvents() []types.AlarmEvent
}

// Notifier dispatches one alarm event to one channel.
type Notifier interface {
	Notify(ctx context.Context, channel types.NotificationChannel, alarm types.Alarm, event types.AlarmEvent) error
}

// Evaluator runs the periodic alarm sweep.
type Evaluator struct {
	store    Store
	executor *search.Executor
	notifier Notifier
	logger   *logrus.Logger
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(store Store, executor *search.Executor, notifier Notifier, interval time.Duration, logger *logrus.Logger) *Evaluator {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Evaluator{
		store:    store,
		executor: executor,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (ev *Evaluator) Run() {
	ev.wg.Add(1)
	go func() {
		defer ev.wg.Done()
		ticker := time.NewTicker(ev.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ev.stopCh:
				return
			case <-ticker.C:
				ev.EvaluateAll(context.Background())
			}
		}
	}()
}

func (ev *Evaluator) Close() {
	close(ev.stopCh)
	ev.wg.Wait()
}

// EvaluateAll runs every enabled alarm, logging but not aborting on a
// per-alarm failure so one bad query cannot block the rest.
func (ev *Evaluator) EvaluateAll(ctx context.Context) {
	for _, a := range ev.store.ListAlarms() {
		if !a.Enabled {
			continue
		}
		if err := ev.evaluate(ctx, a); err != nil {
			ev.logger.WithError(err).WithField("alarm", a.ID).Warn("alarm evaluation failed")
		}
	}
}

func (ev *Evaluator) evaluate(ctx context.Context, a types.Alarm) error {
	metrics.AlarmEvaluationsTotal.WithLabelValues(a.ID).Inc()

	plan, err := query.Parse(query.ParseRequest{Query: a.Query, IsRegex: a.IsRegex})
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeQueryParse, "alarm", "evaluate", "invalid saved query for alarm "+a.ID)
	}

	window := time.Duration(a.TimeWindowMinutes) * time.Minute
	if window <= 0 {
		window = 5 * time.Minute
	}
	now := time.Now()
	rng := search.TimeRange{Start: ptr(now.Add(-window)), End: ptr(now)}

	count, err := ev.executor.Count(ctx, plan, rng)
	if err != nil {
		return err
	}

	active, hasActive := ev.store.ActiveEvent(a.ID)
	satisfied := a.Condition.Evaluate(int64(count), a.Threshold)

	switch {
	case satisfied && !hasActive:
		return ev.trigger(ctx, a, int64(count))
	case satisfied && hasActive:
		return ev.maybeRenotify(ctx, a, active, int64(count))
	case !satisfied && hasActive:
		return ev.resolve(a, active)
	default:
		return nil
	}
}

func (ev *Evaluator) trigger(ctx context.Context, a types.Alarm, count int64) error {
	event := types.AlarmEvent{
		ID:          uuid.NewString(),
		AlarmID:     a.ID,
		AlarmName:   a.Name,
		Status:      types.EventTriggered,
		TriggeredAt: time.Now(),
		MatchCount:  count,
		Details:     a.Query,
	}
	ev.store.SaveEvent(event)
	ev.dispatch(ctx, a, event)
	return nil
}

// maybeRenotify re-sends notifications for a still-firing alarm once
// the throttle window has elapsed, updating MatchCount on every pass
// regardless of whether a notification actually goes out. An
// acknowledged event never re-notifies: acknowledgement silences the
// alarm until it resolves, so only MatchCount is refreshed.
func (ev *Evaluator) maybeRenotify(ctx context.Context, a types.Alarm, active types.AlarmEvent, count int64) error {
	active.MatchCount = count
	if active.Status == types.EventAcknowledged {
		ev.store.SaveEvent(active)
		return nil
	}
	throttle := time.Duration(a.ThrottleWindowMinutes) * time.Minute
	if throttle <= 0 || time.Since(active.LastNotifiedAt) >= throttle {
		ev.store.SaveEvent(active)
		ev.dispatch(ctx, a, active)
		return nil
	}
	ev.store.SaveEvent(active)
	return nil
}

func (ev *Evaluator) resolve(a types.Alarm, active types.AlarmEvent) error {
	now := time.Now()
	active.Status = types.EventResolved
	active.ResolvedAt = &now
	ev.store.SaveEvent(active)
	return nil
}

// Acknowledge transitions a TRIGGERED event to ACKNOWLEDGED.
func (ev *Evaluator) Acknowledge(alarmID, ackBy string) (types.AlarmEvent, error) {
	active, ok := ev.store.ActiveEvent(alarmID)
	if !ok {
		return types.AlarmEvent{}, apperrors.New(apperrors.CodeNotFound, "alarm", "Acknowledge", "no active event for alarm "+alarmID)
	}
	now := time.Now()
	active.Status = types.EventAcknowledged
	active.AckAt = &now
	active.AckBy = ackBy
	ev.store.SaveEvent(active)
	return active, nil
}

// Resolve manually transitions an active event to RESOLVED.
func (ev *Evaluator) Resolve(alarmID string) (types.AlarmEvent, error) {
	active, ok := ev.store.ActiveEvent(alarmID)
	if !ok {
		return types.AlarmEvent{}, apperrors.New(apperrors.CodeNotFound, "alarm", "Resolve", "no active event for alarm "+alarmID)
	}
	if err := ev.resolve(types.Alarm{ID: alarmID}, active); err != nil {
		return types.AlarmEvent{}, err
	}
	active.Status = types.EventResolved
	return active, nil
}

// Statistics summarizes the current alarm population.
func (ev *Evaluator) Statistics() types.AlarmStatistics {
	alarms := ev.store.ListAlarms()
	stats := types.AlarmStatistics{Total: len(alarms)}
	for _, a := range alarms {
		if a.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
	}
	cutoff := time.Now().Add(-time.Hour)
	for _, e := range ev.store.AllEvents() {
		if e.Status == types.EventTriggered && e.TriggeredAt.After(cutoff) {
			stats.RecentlyTriggeredLastHour++
		}
	}
	return stats
}

// dispatch fans a notification out to every configured channel,
// isolating failures per channel so one bad channel never blocks the
// others, and records LastNotifiedAt once dispatch is attempted.
func (ev *Evaluator) dispatch(ctx context.Context, a types.Alarm, event types.AlarmEvent) {
	event.LastNotifiedAt = time.Now()
	ev.store.SaveEvent(event)

	var wg sync.WaitGroup
	for _, ch := range a.NotificationChannels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ev.notifier.Notify(ctx, ch, a, event)
			result := "success"
			if err != nil {
				result = "failure"
				ev.logger.WithError(err).WithFields(logrus.Fields{
					"alarm": a.ID, "channel": ch.Kind,
				}).Warn("notification dispatch failed")
			}
			metrics.AlarmNotificationsTotal.WithLabelValues(string(ch.Kind), result).Inc()
		}()
	}
	wg.Wait()
}

func ptr(t time.Time) *time.Time { return &t }
