package sensor

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки sensor'а.
var (
	// ErrTimeout — источник не стал доступен за отведённое время.
	ErrTimeout = errors.New("sensor timed out")

	// ErrCancelled — ожидание отменено.
	ErrCancelled = errors.New("sensor cancelled")

	// ErrUnexpectedStatus — API вернул 5xx ответ.
	ErrUnexpectedStatus = errors.New("unexpected http status")

	// ErrMalformedResponse — в ответе нет ожидаемых полей.
	ErrMalformedResponse = errors.New("malformed probe response")
)

// TimeoutError — бюджет ожидания исчерпан.
type TimeoutError struct {
	Probes  int           // количество выполненных проверок
	Timeout time.Duration // бюджет ожидания
	LastErr error         // ошибка последней неудачной проверки, если была
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("source not ready after %s (%d probes)", e.Timeout, e.Probes)
	if e.LastErr != nil {
		msg += ": last probe error: " + e.LastErr.Error()
	}
	return msg
}

// Is позволяет проверять errors.Is(err, ErrTimeout).
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}
