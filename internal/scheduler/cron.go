package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений, включая дескрипторы (@daily, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// maxCatchup — предел слотов за один тик при catchup.
const maxCatchup = 100

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// DueSlots возвращает наступившие (<= now) слоты после after в порядке возрастания.
//
// after == nil — pipeline ещё не запускался: учитывается только start,
// а без start берётся лишь последний наступивший слот.
// Без catchup возвращается не больше одного, самого позднего слота.
func DueSlots(cronExpr string, loc *time.Location, after, start *time.Time, now time.Time, catchup bool) ([]time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	var from time.Time
	switch {
	case after != nil:
		from = after.In(loc)
	case start != nil:
		// слот, совпадающий со start, тоже должен попасть в выборку
		from = start.In(loc).Add(-time.Second)
	default:
		return latestOnly(sched, now.In(loc)), nil
	}

	var slots []time.Time
	for next := sched.Next(from); !next.After(now); next = sched.Next(next) {
		slots = append(slots, next.UTC())
		if catchup && len(slots) >= maxCatchup {
			break
		}
	}

	if !catchup && len(slots) > 1 {
		slots = slots[len(slots)-1:]
	}
	return slots, nil
}

// latestOnly находит последний слот <= now.
func latestOnly(sched cron.Schedule, now time.Time) []time.Time {
	// Шагаем назад окнами, пока в окне не найдётся слот
	for window := time.Hour; window <= 400*24*time.Hour; window *= 2 {
		var last time.Time
		for next := sched.Next(now.Add(-window)); !next.After(now); next = sched.Next(next) {
			last = next
		}
		if !last.IsZero() {
			return []time.Time{last.UTC()}
		}
	}
	return nil
}

// NextSlot возвращает ближайший слот после from.
func NextSlot(cronExpr string, loc *time.Location, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return sched.Next(from.In(loc)).UTC(), nil
}
