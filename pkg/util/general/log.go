/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package general

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// LoggingPKG decides how much of the caller path is printed as log prefix.
type LoggingPKG int

func (l *LoggingPKG) Type() string {
	return "LoggingPKG"
}

func (l *LoggingPKG) String() string {
	return strconv.Itoa(int(*l))
}

func (l *LoggingPKG) Set(value string) error {
	level, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if level < int(LoggingPKGNone) || level > int(LoggingPKGFull) {
		return fmt.Errorf("logging package level %d out of range [%d, %d]", level, LoggingPKGNone, LoggingPKGFull)
	}
	*l = LoggingPKG(level)
	return nil
}

const (
	LoggingPKGNone LoggingPKG = iota
	LoggingPKGShort
	LoggingPKGFull
)

var (
	defaultLoggingPackage = LoggingPKGFull
	defaultLoggingMtx     sync.RWMutex
)

// SetDefaultLoggingPackage should only be called by flags,
// and should not be altered dynamically.
func SetDefaultLoggingPackage(l LoggingPKG) {
	defaultLoggingMtx.Lock()
	defer defaultLoggingMtx.Unlock()
	defaultLoggingPackage = l
}

func getDefaultLoggingPackage() LoggingPKG {
	defaultLoggingMtx.RLock()
	defer defaultLoggingMtx.RUnlock()
	return defaultLoggingPackage
}

const skippedPackagePrefix = "github.com/kubewharf/"

// callerName names the function that called into this package, trimmed
// according to pkg. The depth matches every exported helper below, which
// call it through format.
func callerName(pkg LoggingPKG) string {
	pc, _, _, ok := runtime.Caller(3)
	if !ok {
		return ""
	}

	callPath := runtime.FuncForPC(pc).Name()
	switch pkg {
	case LoggingPKGNone:
		return callPath[strings.LastIndex(callPath, ".")+1:]
	case LoggingPKGShort:
		return callPath[strings.LastIndex(callPath, "/")+1:]
	case LoggingPKGFull:
		return strings.TrimPrefix(callPath, skippedPackagePrefix)
	}
	return ""
}

func format(prefix, message string, params ...interface{}) string {
	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}
	return "[" + prefix + callerName(getDefaultLoggingPackage()) + "] " + message
}

func Infof(message string, params ...interface{}) {
	klog.InfofDepth(1, format("", message, params...))
}

func InfofV(level int, message string, params ...interface{}) {
	klog.V(klog.Level(level)).InfofDepth(1, format("", message, params...))
}

func Warningf(message string, params ...interface{}) {
	klog.WarningfDepth(1, format("", message, params...))
}

func Errorf(message string, params ...interface{}) {
	klog.ErrorfDepth(1, format("", message, params...))
}

// InfoS logs message with structured key/value pairs.
func InfoS(message string, keysAndValues ...interface{}) {
	klog.InfoSDepth(1, format("", message), keysAndValues...)
}

func ErrorS(err error, message string, keysAndValues ...interface{}) {
	klog.ErrorSDepth(1, err, format("", message), keysAndValues...)
}

// Logger tags every line with the name of a long running component, such
// as a lifecycle source.
type Logger struct {
	prefix string
}

func LoggerWithPrefix(name string) Logger {
	if name == "" {
		return Logger{}
	}
	return Logger{prefix: name + ": "}
}

func (l Logger) Infof(message string, params ...interface{}) {
	klog.InfofDepth(1, format(l.prefix, message, params...))
}

func (l Logger) Warningf(message string, params ...interface{}) {
	klog.WarningfDepth(1, format(l.prefix, message, params...))
}

func (l Logger) Errorf(message string, params ...interface{}) {
	klog.ErrorfDepth(1, format(l.prefix, message, params...))
}
