// Package notify is the user-facing notification surface. The
// aggregator raises a notification when it blocks a phishing attempt;
// the sink decides how the user sees it.
package notify

import (
	"phishguard/internal/logger"
)

// LogNotifier writes notifications to the service log. It is the
// fallback sink when no desktop integration is wired.
type LogNotifier struct{}

// Notify logs one user-visible notification.
func (LogNotifier) Notify(title, message string) {
	logger.Warnf("notification: %s: %s", title, message)
}

// FuncNotifier adapts a function to the notifier interface.
type FuncNotifier func(title, message string)

// Notify invokes the wrapped function.
func (f FuncNotifier) Notify(title, message string) {
	f(title, message)
}
