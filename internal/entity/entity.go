package entity

import "time"

// Entity is one tracked domain object as observed upstream. The core never
// looks inside Payload; identity and change detection rely on Id and
// Revision only.
type Entity struct {
	Id       string
	Revision string
	Payload  map[string]any
}

// Descriptor describes one tracked collection: the topic it is broadcast
// under (also its cache partition key), the upstream NGSI-LD entity type,
// and how often it is polled.
type Descriptor struct {
	Topic        string
	SourceType   string
	PollInterval time.Duration
}

const (
	TopicCameras    = "cameras"
	TopicWeather    = "weather"
	TopicAirQuality = "airQuality"
	TopicAccidents  = "accidents"
	TopicPatterns   = "patterns"

	// TopicAll is a subscription wildcard, never a broadcast topic.
	TopicAll = "all"
)

// Catalog returns the tracked collections with their default poll
// intervals. Accidents refresh fastest, traffic patterns slowest.
func Catalog() []Descriptor {
	return []Descriptor{
		{Topic: TopicCameras, SourceType: "Camera", PollInterval: 30 * time.Second},
		{Topic: TopicWeather, SourceType: "WeatherObserved", PollInterval: 30 * time.Second},
		{Topic: TopicAirQuality, SourceType: "AirQualityObserved", PollInterval: 30 * time.Second},
		{Topic: TopicAccidents, SourceType: "Accident", PollInterval: 10 * time.Second},
		{Topic: TopicPatterns, SourceType: "TrafficFlowObserved", PollInterval: 60 * time.Second},
	}
}

// IsSubscribableTopic reports whether topic is something a client may
// subscribe to: a tracked collection or the wildcard.
func IsSubscribableTopic(topic string) bool {
	if topic == TopicAll {
		return true
	}

	return IsTrackedTopic(topic)
}

// IsTrackedTopic reports whether topic names a tracked collection.
func IsTrackedTopic(topic string) bool {
	for _, descriptor := range Catalog() {
		if descriptor.Topic == topic {
			return true
		}
	}

	return false
}
