// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "github.com/golang/glog"

// Logger is the trace/logging external collaborator (spec §1). Volume
// takes one at construction; a nil Logger is replaced by glogLogger, which
// gates trace output (Infof) behind glog's verbosity flags so a production
// mount stays quiet by default; Errorf is always emitted.
type Logger interface {
	// V reports whether logging at the given verbosity level is enabled.
	V(level int) bool

	// Infof logs a formatted trace message. Callers must guard with V
	// first if the message is expensive to build.
	Infof(format string, args ...interface{})

	// Errorf logs a formatted error-level message, always emitted
	// regardless of V.
	Errorf(format string, args ...interface{})
}

type glogLogger struct{}

func (glogLogger) V(level int) bool { return bool(glog.V(glog.Level(level))) }
func (glogLogger) Infof(format string, args ...interface{}) {
	if glog.V(2) {
		glog.Infof(format, args...)
	}
}
func (glogLogger) Errorf(format string, args ...interface{}) { glog.Errorf(format, args...) }

// defaultLogger is used by a Volume constructed with a nil Logger.
var defaultLogger Logger = glogLogger{}

// noopLogger discards everything; useful in tests that don't want glog's
// global flags touched.
type noopLogger struct{}

func (noopLogger) V(int) bool                    { return false }
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
