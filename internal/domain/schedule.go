package domain

import "time"

// Schedule — расписание автоматического запуска pipeline.
//
// Scheduler вычисляет слоты по CronExpr и создаёт run, когда слот наступил.
type Schedule struct {
	// CronExpr — cron-выражение или дескриптор.
	// Примеры:
	//   "@daily"        — каждый день в полночь
	//   "0 9 * * *"     — каждый день в 9:00
	//   "*/5 * * * *"   — каждые 5 минут
	CronExpr string `json:"schedule" yaml:"schedule"`

	// Timezone — часовой пояс для вычисления слотов. По умолчанию "UTC".
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// Catchup — догонять ли пропущенные слоты.
	// Если false, при пропуске нескольких слотов запускается только последний.
	Catchup bool `json:"catchup,omitempty" yaml:"catchup,omitempty"`

	// StartDate — слоты раньше этой даты не создаются.
	StartDate *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`

	// LastSlot — последний слот, для которого был создан run.
	LastSlot *time.Time `json:"-" yaml:"-"`
}

// Location возвращает часовой пояс расписания (UTC при ошибке).
func (s *Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RecordSlot запоминает слот, для которого был создан run.
func (s *Schedule) RecordSlot(slot time.Time) {
	slot = slot.UTC()
	s.LastSlot = &slot
}
