package analytics

import (
	"os"

	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ FlowDataCollector = new(LogFileDataCollector)
var _ FlowDataCollector = new(LoggerDataCollector)

type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	enccoderConfig := zap.NewProductionEncoderConfig()
	enccoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	enccoderConfig.StacktraceKey = "" // to hide stacktrace info
	fileEncoder := zapcore.NewJSONEncoder(enccoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	writer := zapcore.AddSync(logFile)
	core := zapcore.NewCore(fileEncoder, writer, zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func contextFields(fc *model.FlowContext, nodeUuid string) []zap.Field {
	return []zap.Field{
		zap.Int64("organization", fc.OrganizationId),
		zap.Int64("contact", fc.ContactId),
		zap.String("flow", fc.FlowUuid),
		zap.String("context", fc.Id),
		zap.String("node", nodeUuid),
		zap.String("state", string(fc.State)),
	}
}

func (lc *LogFileDataCollector) RecordStepSuccess(fc *model.FlowContext, nodeUuid string, data map[string]any) {
	lc.logger.Info("success", append(contextFields(fc, nodeUuid), zap.Any("data", data))...)
}

func (lc *LogFileDataCollector) RecordStepFailure(fc *model.FlowContext, nodeUuid string, reason string) {
	lc.logger.Info("failure", append(contextFields(fc, nodeUuid), zap.String("reason", reason))...)
}

func (lc *LogFileDataCollector) Sync() error {
	return lc.logger.Sync()
}

// LoggerDataCollector reports through the process logger.
type LoggerDataCollector struct{}

func NewLoggerDataCollector() *LoggerDataCollector {
	return &LoggerDataCollector{}
}

func (lc *LoggerDataCollector) RecordStepSuccess(fc *model.FlowContext, nodeUuid string, data map[string]any) {
	logger.Debug("flow step", append(contextFields(fc, nodeUuid), zap.Any("data", data))...)
}

func (lc *LoggerDataCollector) RecordStepFailure(fc *model.FlowContext, nodeUuid string, reason string) {
	logger.Error("flow execution failed", append(contextFields(fc, nodeUuid), zap.String("reason", reason))...)
}
