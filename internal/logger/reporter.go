package logger

import (
	"go.uber.org/zap"

	"workctl/internal/control"
)

// Reporter forwards supervisor reports to a zap logger.
type Reporter struct {
	log *zap.SugaredLogger
}

func NewReporter(log *zap.SugaredLogger) *Reporter {
	return &Reporter{log: log}
}

func (r *Reporter) Report(message string, severity control.Severity, fault error) {
	kv := []any{"severity", severity.String()}
	if fault != nil {
		kv = append(kv, "fault", fault)
	}
	switch severity {
	case control.SeverityDebug:
		r.log.Debugw(message, kv...)
	case control.SeverityInfo:
		r.log.Infow(message, kv...)
	case control.SeverityWarning:
		r.log.Warnw(message, kv...)
	default:
		r.log.Errorw(message, kv...)
	}
}

var _ control.Reporter = (*Reporter)(nil)
