// Copyright 2023 The themiscyra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"github.com/cezarad/themiscyra/viewchange"

	"go.uber.org/zap"
)

// NewReplicaLogger builds a viewchange.Logger from a zap configuration.
func NewReplicaLogger(lcfg *zap.Config) (viewchange.Logger, error) {
	lg, err := lcfg.Build(zap.AddCallerSkip(1)) // to annotate caller outside of "logutil"
	if err != nil {
		return nil, err
	}
	return &zapReplicaLogger{lg: lg, sugar: lg.Sugar()}, nil
}

// NewReplicaLoggerZap converts "*zap.Logger" to "viewchange.Logger".
func NewReplicaLoggerZap(lg *zap.Logger) viewchange.Logger {
	return &zapReplicaLogger{lg: lg, sugar: lg.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type zapReplicaLogger struct {
	lg    *zap.Logger
	sugar *zap.SugaredLogger
}

func (zl *zapReplicaLogger) Debug(args ...interface{}) {
	zl.sugar.Debug(args...)
}

func (zl *zapReplicaLogger) Debugf(format string, args ...interface{}) {
	zl.sugar.Debugf(format, args...)
}

func (zl *zapReplicaLogger) Error(args ...interface{}) {
	zl.sugar.Error(args...)
}

func (zl *zapReplicaLogger) Errorf(format string, args ...interface{}) {
	zl.sugar.Errorf(format, args...)
}

func (zl *zapReplicaLogger) Info(args ...interface{}) {
	zl.sugar.Info(args...)
}

func (zl *zapReplicaLogger) Infof(format string, args ...interface{}) {
	zl.sugar.Infof(format, args...)
}

func (zl *zapReplicaLogger) Warning(args ...interface{}) {
	zl.sugar.Warn(args...)
}

func (zl *zapReplicaLogger) Warningf(format string, args ...interface{}) {
	zl.sugar.Warnf(format, args...)
}

func (zl *zapReplicaLogger) Fatal(args ...interface{}) {
	zl.sugar.Fatal(args...)
}

func (zl *zapReplicaLogger) Fatalf(format string, args ...interface{}) {
	zl.sugar.Fatalf(format, args...)
}

func (zl *zapReplicaLogger) Panic(args ...interface{}) {
	zl.sugar.Panic(args...)
}

func (zl *zapReplicaLogger) Panicf(format string, args ...interface{}) {
	zl.sugar.Panicf(format, args...)
}
