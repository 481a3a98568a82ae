package zab

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel selects the verbosity of the participant's zap logger.
type LogLevel int8

const (
	LogLevelDebug LogLevel = LogLevel(zapcore.DebugLevel)
	LogLevelInfo  LogLevel = LogLevel(zapcore.InfoLevel)
	LogLevelWarn  LogLevel = LogLevel(zapcore.WarnLevel)
	LogLevelError LogLevel = LogLevel(zapcore.ErrorLevel)
)

// participantLogger builds a *zap.SugaredLogger with console encoding and a
// single adjustable level gate.
func participantLogger(level LogLevel) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(level))
	logger, err := cfg.Build()
	if err != nil {
		// Fall back rather than fail boot over a logging misconfiguration.
		logger = zap.NewExample()
	}
	return logger.Sugar()
}

// logFields prefixes every log line with the participant's identity and
// current phase/role/epoch/lastZxid, so a fatal condition's log line always
// carries enough state to diagnose without cross-referencing other lines.
func logFields(p *Participant, extra ...any) []any {
	fields := []any{
		"server_id", p.id,
		"role", p.role().String(),
		"phase", p.phase().String(),
		"proposed_epoch", p.persistence.ProposedEpoch(),
		"ack_epoch", p.persistence.AckEpoch(),
		"last_zxid", p.lastDeliveredZxid().String(),
	}
	return append(fields, extra...)
}
