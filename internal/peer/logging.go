package peer

import (
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// NewAPI returns a pion API whose internal logging goes to logger.
func NewAPI(logger logrus.FieldLogger) *webrtc.API {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = LoggerFactory(logger)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// LoggerFactory adapts a logrus logger to pion's logging interface.
func LoggerFactory(logger logrus.FieldLogger) logging.LoggerFactory {
	return loggerFactory{log: logger}
}

type loggerFactory struct {
	log logrus.FieldLogger
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{e: f.log.WithField("pion", scope)}
}

type pionLogger struct {
	e *logrus.Entry
}

func (l pionLogger) Trace(msg string)                          { l.e.Trace(msg) }
func (l pionLogger) Tracef(format string, args ...interface{}) { l.e.Tracef(format, args...) }
func (l pionLogger) Debug(msg string)                          { l.e.Trace(msg) }
func (l pionLogger) Debugf(format string, args ...interface{}) { l.e.Tracef(format, args...) }
func (l pionLogger) Info(msg string)                           { l.e.Debug(msg) }
func (l pionLogger) Infof(format string, args ...interface{})  { l.e.Debugf(format, args...) }
func (l pionLogger) Warn(msg string)                           { l.e.Warn(msg) }
func (l pionLogger) Warnf(format string, args ...interface{})  { l.e.Warnf(format, args...) }
func (l pionLogger) Error(msg string)                          { l.e.Error(msg) }
func (l pionLogger) Errorf(format string, args ...interface{}) { l.e.Errorf(format, args...) }
