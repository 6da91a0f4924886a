package intentions

import (
	"context"
	"errors"
	"fmt"
)

type Code string

const (
	CodeTargetNotReachable Code = "target_not_reachable"
	CodePathNotFree        Code = "path_not_free"
	CodeMovementFail       Code = "movement_fail"
	CodeStopped            Code = "stopped"
)

// Result codes recorded for finished intentions besides the failure codes.
const (
	ResultAchieved = "achieved"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Failure is a tagged executor failure. Two failures match under errors.Is
// when their codes are equal.
type Failure struct {
	Code Code
	Msg  string
	Err  error
}

func (f *Failure) Error() string {
	switch {
	case f.Msg != "" && f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Msg, f.Err)
	case f.Msg != "":
		return fmt.Sprintf("%s: %s", f.Code, f.Msg)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Code, f.Err)
	}
	return string(f.Code)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Code == f.Code
}

var (
	ErrTargetNotReachable = &Failure{Code: CodeTargetNotReachable}
	ErrPathNotFree        = &Failure{Code: CodePathNotFree}
	ErrMovementFail       = &Failure{Code: CodeMovementFail}
	ErrStopped            = &Failure{Code: CodeStopped}
)

func Fail(code Code, format string, args ...any) *Failure {
	return &Failure{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// ResultOf maps an intention error to the result code recorded for it.
func ResultOf(err error) string {
	if err == nil {
		return ResultAchieved
	}
	var f *Failure
	if errors.As(err, &f) {
		return string(f.Code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ResultCanceled
	}
	return ResultError
}
