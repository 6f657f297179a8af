package observer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevinb28-21/CropView-sub001/internal/metrics"
)

// AnalysisEvent represents one event in a field image's analysis lifecycle
type AnalysisEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	ImageID        string                 `json:"image_id,omitempty"`
	ImageURL       string                 `json:"image_url,omitempty"`
	Channels       int                    `json:"channels,omitempty"`
	Category       string                 `json:"category,omitempty"`
	AnalysisType   string                 `json:"analysis_type,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of analysis event
type EventType string

const (
	// AnalysisStarted when the pipeline accepts an image
	AnalysisStarted EventType = "analysis_started"
	// AnalysisCompleted when the pipeline produces a result
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisFailed when the pipeline returns a fatal error
	AnalysisFailed EventType = "analysis_failed"
	// ClassifierFellBack when a model failure was recovered by rules
	ClassifierFellBack EventType = "classifier_fell_back"
	// ImageFetched when an image is successfully fetched
	ImageFetched EventType = "image_fetched"
	// ImageFetchFailed when an image fetch fails
	ImageFetchFailed EventType = "image_fetch_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event AnalysisEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event AnalysisEvent)
}

// LoggingObserver logs analysis events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles analysis events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.ImageID != "" {
		fields["image_id"] = event.ImageID
	}
	if event.ImageURL != "" {
		fields["image_url"] = event.ImageURL
	}
	if event.Category != "" {
		fields["category"] = event.Category
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case AnalysisStarted:
		o.logger.WithFields(fields).Info("Field image analysis started")
	case AnalysisCompleted:
		o.logger.WithFields(fields).Info("Field image analysis completed")
	case AnalysisFailed:
		o.logger.WithFields(fields).Error("Field image analysis failed")
	case ClassifierFellBack:
		o.logger.WithFields(fields).Warn("Model classifier fell back to rules")
	case ImageFetched:
		o.logger.WithFields(fields).Debug("Field image fetched")
	case ImageFetchFailed:
		o.logger.WithFields(fields).Error("Field image fetch failed")
	default:
		o.logger.WithFields(fields).Info("Analysis event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver forwards analysis events to the Prometheus collectors
type MetricsObserver struct{}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() Observer {
	return &MetricsObserver{}
}

// OnEvent handles analysis events by updating the process metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	channels := strconv.Itoa(event.Channels)
	switch event.EventType {
	case AnalysisCompleted:
		metrics.RecordAnalysis(channels, "completed", event.ProcessingTime)
		if event.Category != "" {
			metrics.RecordClassification(event.Category, event.AnalysisType)
		}
	case AnalysisFailed:
		metrics.RecordAnalysis(channels, "failed", event.ProcessingTime)
	case ClassifierFellBack:
		metrics.RecordClassifierFallback()
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event AnalysisEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// Notify observers concurrently
	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}
