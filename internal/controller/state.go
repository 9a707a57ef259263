package controller

import (
	"fmt"

	"github.com/i474232898/forecast-controller/internal/weather"
)

// Kind discriminates the variants of State.
type Kind int

const (
	KindLoading Kind = iota
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the controller's current knowledge: exactly one of Loading,
// Success(result) or Error(message). The zero value is Loading.
type State struct {
	kind    Kind
	result  *weather.ForecastResult
	message string
}

// Loading returns the state published at the start of every cycle.
func Loading() State {
	return State{kind: KindLoading}
}

// Success returns the state carrying a fetched forecast.
func Success(result weather.ForecastResult) State {
	return State{kind: KindSuccess, result: &result}
}

// Failure returns the Error variant; the name Error is left to error values.
func Failure(message string) State {
	return State{kind: KindError, message: message}
}

func (s State) Kind() Kind { return s.kind }

// Result returns the forecast when s is Success.
func (s State) Result() (weather.ForecastResult, bool) {
	if s.kind != KindSuccess || s.result == nil {
		return weather.ForecastResult{}, false
	}
	return *s.result, true
}

// Message returns the error text when s is Error.
func (s State) Message() (string, bool) {
	if s.kind != KindError {
		return "", false
	}
	return s.message, true
}

func (s State) String() string {
	switch s.kind {
	case KindSuccess:
		return fmt.Sprintf("Success(%s, %d days)", s.result.Location.Name, s.result.Days())
	case KindError:
		return fmt.Sprintf("Error(%q)", s.message)
	default:
		return s.kind.String()
	}
}

// Match consumes s with one handler per variant; all three are required.
func Match[R any](s State, onLoading func() R, onSuccess func(weather.ForecastResult) R, onError func(string) R) R {
	switch s.kind {
	case KindSuccess:
		return onSuccess(*s.result)
	case KindError:
		return onError(s.message)
	default:
		return onLoading()
	}
}
