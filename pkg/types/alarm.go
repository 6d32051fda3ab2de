package types

import "time"

// AlarmCondition is the comparison operator applied to a query's match
// count against Alarm.Threshold.
type AlarmCondition string

const (
	ConditionGreater        AlarmCondition = "count >"
	ConditionGreaterOrEqual AlarmCondition = "count >="
	ConditionLess           AlarmCondition = "count <"
	ConditionLessOrEqual    AlarmCondition = "count <="
)

// Evaluate applies the condition to an observed match count.
func (c AlarmCondition) Evaluate(matchCount, threshold int64) bool {
	switch c {
	case ConditionGreater:
		return matchCount > threshold
	case ConditionGreaterOrEqual:
		return matchCount >= threshold
	case ConditionLess:
		return matchCount < threshold
	case ConditionLessOrEqual:
		return matchCount <= threshold
	default:
		return false
	}
}

// ChannelKind tags which NotificationChannel variant is active.
type ChannelKind string

const (
	ChannelEmail     ChannelKind = "EMAIL"
	ChannelWebhook   ChannelKind = "WEBHOOK"
	ChannelSyslog    ChannelKind = "SYSLOG"
	ChannelPagerDuty ChannelKind = "PAGERDUTY"
)

// NotificationChannel is a tagged variant of the four delivery mechanisms
// an Alarm can dispatch to.
type NotificationChannel struct {
	Kind ChannelKind `yaml:"kind" json:"kind"`

	// EMAIL
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// WEBHOOK
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// SYSLOG
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Facility string `yaml:"facility,omitempty" json:"facility,omitempty"`

	// PAGERDUTY
	IntegrationKey string `yaml:"integration_key,omitempty" json:"integrationKey,omitempty"`
	Severity       string `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// Alarm is a saved threshold query.
type Alarm struct {
	ID                     string                `yaml:"id" json:"id"`
	Name                   string                `yaml:"name" json:"name"`
	Query                  string                `yaml:"query" json:"query"`
	IsRegex                bool                  `yaml:"is_regex" json:"isRegex"`
	Condition              AlarmCondition        `yaml:"condition" json:"condition"`
	Threshold              int64                 `yaml:"threshold" json:"threshold"`
	TimeWindowMinutes      int                   `yaml:"time_window_minutes" json:"timeWindowMinutes"`
	Enabled                bool                  `yaml:"enabled" json:"enabled"`
	NotificationChannels   []NotificationChannel `yaml:"notification_channels" json:"notificationChannels"`
	ThrottleWindowMinutes  int                   `yaml:"throttle_window_minutes" json:"throttleWindowMinutes"`
}

func (a Alarm) GetID() string { return a.ID }

// AlarmEventStatus is the state-machine status of an AlarmEvent.
type AlarmEventStatus string

const (
	EventTriggered    AlarmEventStatus = "TRIGGERED"
	EventAcknowledged AlarmEventStatus = "ACKNOWLEDGED"
	EventResolved     AlarmEventStatus = "RESOLVED"
)

// AlarmEvent records one firing (and its lifecycle) of an Alarm.
type AlarmEvent struct {
	ID          string           `json:"id"`
	AlarmID     string           `json:"alarmId"`
	AlarmName   string           `json:"alarmName"`
	Status      AlarmEventStatus `json:"status"`
	TriggeredAt time.Time        `json:"triggeredAt"`
	AckAt       *time.Time       `json:"ackAt,omitempty"`
	AckBy       string           `json:"ackBy,omitempty"`
	ResolvedAt  *time.Time       `json:"resolvedAt,omitempty"`
	MatchCount  int64            `json:"matchCount"`
	Details     string           `json:"details,omitempty"`

	// LastNotifiedAt is not part of the spec's explicit field list for
	// AlarmEvent, but the throttle window it implies must be tracked
	// somewhere explicit — it lives here.
	LastNotifiedAt time.Time `json:"lastNotifiedAt"`
}

// AlarmStatistics summarizes the alarm population.
type AlarmStatistics struct {
	Total                  int `json:"total"`
	Enabled                int `json:"enabled"`
	Disabled               int `json:"disabled"`
	RecentlyTriggeredLastHour int `json:"recentlyTriggeredLastHour"`
}
