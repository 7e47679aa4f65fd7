package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"medtrack/internal/adherence"
	"medtrack/internal/model"
	"medtrack/internal/schedule"
	"medtrack/internal/store"
)

// Scheduler periodically checks for dose reminders to send.
type Scheduler struct {
	mu       sync.RWMutex
	service  *Service
	push     *store.PushStore
	meds     *store.MedicationStore
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a dose reminder scheduler.
func NewScheduler(svc *Service, pushStore *store.PushStore, medStore *store.MedicationStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:  svc,
		push:     pushStore,
		meds:     medStore,
		logger:   logger,
		interval: 60 * time.Second,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	userIDs, err := s.push.ListUserIDs()
	if err != nil {
		s.logger.Error("list push users", "error", err)
		return
	}

	for _, uid := range userIDs {
		s.checkDoseReminders(uid, time.Now())
	}
}

// checkDoseReminders sends a reminder for each of the user's doses scheduled
// at the current minute that has not been taken yet. Each dose instant is
// reminded at most once per day.
func (s *Scheduler) checkDoseReminders(userID int64, now time.Time) {
	enabled, err := s.push.IsPreferenceEnabled(userID, model.NotifTypeDoseReminder)
	if err != nil {
		s.logger.Error("check dose reminder preference", "error", err)
		return
	}
	if !enabled {
		return
	}

	meds, err := s.meds.ListByUser(userID)
	if err != nil {
		s.logger.Error("list medications for reminders", "error", err)
		return
	}

	dayStart, dayEnd := adherence.DayBounds(now)
	logs, err := s.meds.ListLogsInRange(userID, dayStart, dayEnd)
	if err != nil {
		s.logger.Error("list logs for reminders", "error", err)
		return
	}

	due := DueDoses(meds, logs, now)
	if len(due) == 0 {
		return
	}

	subs, err := s.push.ListByUser(userID)
	if err != nil {
		s.logger.Error("list subscriptions for reminders", "error", err)
		return
	}

	medNames := make(map[string]string, len(meds))
	for _, m := range meds {
		medNames[m.ID] = m.Name
	}

	for _, instant := range due {
		refID := doseRefID(instant, now)
		sent, err := s.push.WasSent(userID, model.NotifTypeDoseReminder, refID)
		if err != nil {
			s.logger.Error("check sent reminder", "error", err)
			continue
		}
		if sent {
			continue
		}

		payload := Payload{
			Title: "Medication Reminder",
			Body:  fmt.Sprintf("Time to take %s (%s)", medNames[instant.MedicationID], instant.TimeOfDay),
			URL:   "/medications",
			Tag:   "dose-" + instant.MedicationID,
		}

		for _, sub := range subs {
			if err := s.service.Send(&sub, payload); err != nil {
				if errors.Is(err, ErrExpired) {
					s.push.DeleteByEndpoint(sub.Endpoint)
				} else {
					s.logger.Error("send dose reminder", "error", err)
				}
			}
		}

		s.push.RecordSent(userID, model.NotifTypeDoseReminder, refID)
	}
}

// DueDoses returns the dose instants scheduled at the current minute that
// have not been logged as taken. Medications with malformed schedules are
// skipped rather than blocking reminders for the rest.
func DueDoses(meds []model.Medication, logs []model.MedicationLog, now time.Time) []schedule.DoseInstant {
	minute := now.Format("15:04")

	var due []schedule.DoseInstant
	for _, med := range meds {
		instants, err := schedule.Expand(med, now)
		if err != nil {
			continue
		}
		for _, instant := range instants {
			if instant.TimeOfDay != minute {
				continue
			}
			if adherence.Resolve(instant, logs) {
				continue
			}
			due = append(due, instant)
		}
	}
	return due
}

func doseRefID(instant schedule.DoseInstant, now time.Time) string {
	return fmt.Sprintf("dose-%s-%s-%s", instant.MedicationID, instant.TimeOfDay, now.Format("2006-01-02"))
}
