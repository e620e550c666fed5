// Package safego launches goroutines that survive a panic in the function they run, logging the
// crash instead of taking the whole process down with them. Every long-lived goroutine started by
// the dispatcher, calibration worker, or network bus goes through Go rather than a bare "go"
// statement.
package safego

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Go runs fn in a new goroutine. A panic inside fn is recovered, logged with its stack trace
// under the given name, and swallowed: the caller is not notified and the process keeps running.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"goroutine": name,
					"panic":     r,
					"stack":     string(debug.Stack()),
				}).Error("recovered panic in background goroutine")
			}
		}()
		fn()
	}()
}
