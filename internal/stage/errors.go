package stage

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки выполнения stage.
var (
	// ErrTimeout — попытка превысила таймаут stage.
	ErrTimeout = errors.New("stage attempt timed out")

	// ErrRetryExhausted — все попытки исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled — run отменён между попытками.
	ErrCancelled = errors.New("stage cancelled")

	// ErrPanic — stage завершился паникой.
	ErrPanic = errors.New("stage panicked")
)

// RecoverableError — временная ошибка, попытку можно повторить.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return "recoverable: " + e.Err.Error()
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// FatalError — ошибка, при которой повтор бессмыслен (нет данных, неверная конфигурация).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// TimeoutError — попытка не уложилась в таймаут.
type TimeoutError struct {
	Stage   string
	Attempt int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stage %s attempt %d timed out after %s", e.Stage, e.Attempt, e.Timeout)
}

// Is позволяет проверять errors.Is(err, ErrTimeout).
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Recoverable помечает ошибку как временную. Recoverable(nil) == nil.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Err: err}
}

// Fatal помечает ошибку как фатальную. Fatal(nil) == nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Fatalf — fmt.Errorf, помеченный как фатальный.
func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsFatal возвращает true, если в цепочке ошибок есть *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsRecoverable возвращает true для всех ошибок, кроме фатальных.
// Неклассифицированные ошибки считаются временными.
func IsRecoverable(err error) bool {
	return err != nil && !IsFatal(err)
}
