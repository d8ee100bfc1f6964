package mqttc

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
	ErrEmptyTopic         = errors.New("topic cannot be empty")
)

const sharePrefix = "$share/"

// ValidateTopicName checks a topic name for publishing: non-empty, valid
// UTF-8, no null characters, no wildcards.
// MQTT v5.0 spec: Section 4.7.1
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if !utf8.ValidString(topic) || strings.ContainsRune(topic, 0) {
		return ErrInvalidTopicName
	}
	if strings.ContainsAny(topic, "#+") {
		return ErrInvalidTopicName
	}
	return nil
}

// ValidateTopicFilter checks a subscription filter. Wildcards are allowed,
// but '+' must fill its level and '#' must fill the last level.
// MQTT v5.0 spec: Section 4.7.1
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}
	if !utf8.ValidString(filter) || strings.ContainsRune(filter, 0) {
		return ErrInvalidTopicFilter
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "+":
		case level == "#":
			if i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		case strings.ContainsAny(level, "#+"):
			return ErrInvalidTopicFilter
		}
	}
	return nil
}

// TopicMatch reports whether a topic name matches a subscription filter.
// Used to route inbound publishes to the subscription that requested them.
// MQTT v5.0 spec: Section 4.7
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	// Topics starting with '$' are not matched by wildcards at the root
	// level.
	if topic[0] == '$' && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	return matchLevels(filter, topic)
}

// matchLevels walks filter and topic level by level without allocating.
// strings.Cut slices the input in place, so the loop stays allocation-free.
func matchLevels(filter, topic string) bool {
	for filter != "" {
		fLevel, fRest, _ := strings.Cut(filter, "/")

		// '#' swallows the rest of the topic, including zero levels.
		if fLevel == "#" {
			return true
		}

		if topic == "" {
			return false
		}
		tLevel, tRest, _ := strings.Cut(topic, "/")

		if fLevel != "+" && fLevel != tLevel {
			return false
		}

		filter, topic = fRest, tRest
	}

	return topic == ""
}

// IsSystemTopic reports whether the topic lives under $SYS.
func IsSystemTopic(topic string) bool {
	return topic == "$SYS" || strings.HasPrefix(topic, "$SYS/")
}

// SharedSubscription is a parsed $share/{ShareName}/{TopicFilter} filter.
// MQTT v5.0 spec: Section 4.8.2
type SharedSubscription struct {
	ShareName   string
	TopicFilter string
}

// ParseSharedSubscription splits a shared subscription filter into its share
// name and topic filter. It returns (nil, nil) for an ordinary filter. The
// client matches inbound topics against the filter part only.
// MQTT v5.0 spec: Section 4.8.2
func ParseSharedSubscription(filter string) (*SharedSubscription, error) {
	rest, isShared := strings.CutPrefix(filter, sharePrefix)
	if !isShared {
		return nil, nil
	}

	name, topicFilter, found := strings.Cut(rest, "/")
	if !found || name == "" || topicFilter == "" {
		return nil, ErrInvalidTopicFilter
	}

	if err := ValidateTopicFilter(topicFilter); err != nil {
		return nil, err
	}

	return &SharedSubscription{ShareName: name, TopicFilter: topicFilter}, nil
}

// isSharedSubscription reports whether the filter uses the $share prefix.
func isSharedSubscription(filter string) bool {
	return strings.HasPrefix(filter, sharePrefix)
}

// containsWildcard reports whether the filter carries '#' or '+'.
func containsWildcard(filter string) bool {
	return strings.ContainsAny(filter, "#+")
}

// matchFilter returns the filter to match a topic against: the filter part
// of a shared subscription, or the filter itself otherwise.
func matchFilter(filter string) string {
	if shared, err := ParseSharedSubscription(filter); err == nil && shared != nil {
		return shared.TopicFilter
	}
	return filter
}
