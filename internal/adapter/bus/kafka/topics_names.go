package kafka

import "github.com/netreach/lookupd/internal/domain"

const (
	// TopicJobSubmitted carries domain.JobSubmitted events from the
	// submission path to the saga coordinator.
	TopicJobSubmitted = "lookupd.job.submitted"
	// TopicTaskCompleted carries domain.TaskCompleted events from every
	// worker pool back to the saga coordinator.
	TopicTaskCompleted = "lookupd.task.completed"
	// commandTopicPrefix namespaces the per-service command topics.
	commandTopicPrefix = "lookupd.command."

	// DefaultPartitions is used when a topic has to be created on first use.
	DefaultPartitions = 8
)

// CommandTopic returns the topic a given service kind's worker pool
// consumes commands from.
func CommandTopic(kind domain.ServiceKind) string {
	switch kind {
	case domain.ServiceGeoIP:
		return commandTopicPrefix + "geoip"
	case domain.ServicePing:
		return commandTopicPrefix + "ping"
	case domain.ServiceRDAP:
		return commandTopicPrefix + "rdap"
	case domain.ServiceReverseDNS:
		return commandTopicPrefix + "reversedns"
	default:
		return commandTopicPrefix + "unknown"
	}
}
