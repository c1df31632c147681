package tracing

import (
	"os"
	"time"

	"k8s.io/klog/v2/klogr"
)

var enabled = false
var logger = klogr.New()

func init() {
	enabled = os.Getenv("BOOTSTRAP_TRACING_ENABLED") == "1"
}

// LoggingTracer logs a line with the operation name and duration for every finished span.
type LoggingTracer struct{}

var _ Tracer = LoggingTracer{}

func (t LoggingTracer) StartSpan(operationName string) Span {
	return &loggingSpan{operationName, make(map[string]any), time.Now()}
}

type loggingSpan struct {
	operationName string
	baggage       map[string]any
	start         time.Time
}

func (s *loggingSpan) Finish() {
	if enabled {
		logger.WithValues(baggageToVals(s.baggage)...).
			WithValues("operation_name", s.operationName, "time_ms", time.Since(s.start).Seconds()*1e3).
			Info("Trace")
	}
}

func (s *loggingSpan) SetBaggageItem(key string, value any) {
	s.baggage[key] = value
}

func baggageToVals(baggage map[string]any) []any {
	result := make([]any, 0, len(baggage)*2)
	for k, v := range baggage {
		result = append(result, k, v)
	}
	return result
}
