package zaplog

import (
	"github.com/shardstore/shardstore/internal/log_service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogService adapts a zap logger to the LogService interface.
type ZapLogService struct {
	logger *zap.Logger
	nodeID string
}

func NewZapLogService(logger *zap.Logger, nodeID string) *ZapLogService {
	return &ZapLogService{
		logger: logger,
		nodeID: nodeID,
	}
}

// NewDevelopmentLogService builds a console logger filtered at minLevel.
func NewDevelopmentLogService(nodeID string, minLevel string) *ZapLogService {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(minLevel))
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return NewZapLogService(logger, nodeID)
}

// NewNopLogService discards everything. Used in tests.
func NewNopLogService() *ZapLogService {
	return NewZapLogService(zap.NewNop(), "")
}

func zapLevel(level string) zapcore.Level {
	switch log_service.GetLevelValue(level) {
	case log_service.InfoLevelValue:
		return zapcore.InfoLevel
	case log_service.WarnLevelValue:
		return zapcore.WarnLevel
	case log_service.ErrorLevelValue:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

func (ls *ZapLogService) fields(event log_service.LogEvent) []zap.Field {
	fields := make([]zap.Field, 0, len(event.Metadata)+2)
	nodeID := event.NodeID
	if nodeID == "" {
		nodeID = ls.nodeID
	}
	if nodeID != "" {
		fields = append(fields, zap.String("nodeID", nodeID))
	}
	if !event.Timestamp.IsZero() {
		fields = append(fields, zap.Time("eventTime", event.Timestamp.UTC()))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

func (ls *ZapLogService) Debug(event log_service.LogEvent) {
	ls.logger.Debug(event.Message, ls.fields(event)...)
}

func (ls *ZapLogService) Info(event log_service.LogEvent) {
	ls.logger.Info(event.Message, ls.fields(event)...)
}

func (ls *ZapLogService) Warn(event log_service.LogEvent) {
	ls.logger.Warn(event.Message, ls.fields(event)...)
}

func (ls *ZapLogService) Error(event log_service.LogEvent) {
	ls.logger.Error(event.Message, ls.fields(event)...)
}

var _ log_service.LogService = (*ZapLogService)(nil)
