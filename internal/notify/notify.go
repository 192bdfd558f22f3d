// Package notify broadcasts update outcomes. Delivery is best-effort: callers
// log a failed notification and carry on.
package notify

import (
	"context"
	"os"
	"unicode/utf8"
)

// MaxErrorRunes bounds the error text placed in a notification.
const MaxErrorRunes = 1000

// Event carries the template fields of a notification.
type Event struct {
	Version         string
	PreviousVersion string
	URL             string
	Error           string
	Host            string
}

// Sink receives the two orchestration outcomes.
type Sink interface {
	NotifySuccess(ctx context.Context, ev Event) error
	NotifyError(ctx context.Context, ev Event) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifySuccess(context.Context, Event) error { return nil }
func (Nop) NotifyError(context.Context, Event) error   { return nil }

// Truncate shortens s to at most max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
