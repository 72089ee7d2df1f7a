// Package timeutil provides an injectable clock so time dependent code can be
// driven deterministically in tests.
package timeutil

import "time"

// Provider returns the current time.
type Provider interface {
	Now() time.Time
}

type realProvider struct{}

func (realProvider) Now() time.Time { return time.Now().UTC() }

// Default returns a Provider backed by the wall clock in UTC.
func Default() Provider { return realProvider{} }
