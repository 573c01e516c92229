package bus

import "fmt"

// Topic patterns for pipeline event pub/sub.

func TopicPipelineEvents(runID string) string {
	return fmt.Sprintf("events.pipeline.%s", runID)
}

func TopicStageEvents(runID, stage string) string {
	return fmt.Sprintf("events.stage.%s.%s", runID, stage)
}

func TopicSchedulerEvents() string {
	return "events.scheduler"
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsPipeline = "events.pipeline.*"
)
