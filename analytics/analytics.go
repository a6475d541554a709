package analytics

import (
	"github.com/mohitkumar/convoflow/model"
)

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const LOGGER_DATA_COLLECTOR DataCollectorType = "LOGGER_DATA_COLLECTOR"

// FlowDataCollector is the operator channel: every turn outcome worth a human
// look is recorded here.
type FlowDataCollector interface {
	RecordStepSuccess(fc *model.FlowContext, nodeUuid string, data map[string]any)
	RecordStepFailure(fc *model.FlowContext, nodeUuid string, reason string)
}

func NewDataCollector(config DataCollectorConfig) (FlowDataCollector, error) {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		return NewLogFileDataCollector(config.FileName)
	}
	return NewLoggerDataCollector(), nil
}
