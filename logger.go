package idcore

import "github.com/sirupsen/logrus"

// Logger is the minimal leveled interface the engine logs through.
// *logrus.Logger satisfies it directly; any compatible logger can be
// supplied via Builder.WithLogger.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

func newDefaultLogger() Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}
