// Package bus provides the typed in-process pub/sub fabric: per-subscription
// topic filters, ordered delivery by a monotonic sequence, bounded queues
// with explicit backpressure policies, and an optional Kafka mirror for
// off-process consumers.
package bus

// Topic enumerates the event kinds the core emits.
type Topic string

// Topics.
const (
	TopicTrainsetUpdated        Topic = "trainset.updated"
	TopicTrainsetStatusChanged  Topic = "trainset.status_changed"
	TopicFitnessUpdated         Topic = "fitness.updated"
	TopicJobCardUpdated         Topic = "jobcard.updated"
	TopicScheduleUpdated        Topic = "schedule.updated"
	TopicDecisionGenerated      Topic = "decision.generated"
	TopicOptimizationStarted    Topic = "optimization.started"
	TopicOptimizationProgress   Topic = "optimization.progress"
	TopicOptimizationIteration  Topic = "optimization.iteration"
	TopicOptimizationCompleted  Topic = "optimization.completed"
	TopicOptimizationFailed     Topic = "optimization.failed"
	TopicOptimizationCancelled  Topic = "optimization.cancelled"
	TopicMaintenanceAlert       Topic = "maintenance.alert"
	TopicSystemNotification     Topic = "system.notification"
	TopicEmergencyAlert         Topic = "emergency.alert"
)

// AllTopics returns every topic the bus knows about.
func AllTopics() []Topic {
	return []Topic{
		TopicTrainsetUpdated,
		TopicTrainsetStatusChanged,
		TopicFitnessUpdated,
		TopicJobCardUpdated,
		TopicScheduleUpdated,
		TopicDecisionGenerated,
		TopicOptimizationStarted,
		TopicOptimizationProgress,
		TopicOptimizationIteration,
		TopicOptimizationCompleted,
		TopicOptimizationFailed,
		TopicOptimizationCancelled,
		TopicMaintenanceAlert,
		TopicSystemNotification,
		TopicEmergencyAlert,
	}
}

// Valid reports whether the topic is one of the enumerated kinds.
func (t Topic) Valid() bool {
	for _, known := range AllTopics() {
		if t == known {
			return true
		}
	}

	return false
}

// Policy is the backpressure behavior applied when a subscription queue is
// full.
type Policy string

// Backpressure policies.
const (
	// PolicyDropOldest discards the oldest queued event to make room.
	PolicyDropOldest Policy = "drop_oldest"

	// PolicyBlockProducer blocks the publisher until the consumer drains.
	PolicyBlockProducer Policy = "block_producer"

	// PolicyDropSubscription disconnects a consumer that stays full past
	// the grace period.
	PolicyDropSubscription Policy = "drop_subscription"
)

// DefaultPolicyTable maps each topic to its deployment-default policy.
// Progress and iteration streams tolerate loss; status and decision streams
// must not reorder or drop, so they block the producer.
func DefaultPolicyTable() map[Topic]Policy {
	table := make(map[Topic]Policy, len(AllTopics()))

	for _, topic := range AllTopics() {
		table[topic] = PolicyBlockProducer
	}

	table[TopicOptimizationProgress] = PolicyDropOldest
	table[TopicOptimizationIteration] = PolicyDropOldest

	return table
}
