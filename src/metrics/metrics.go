package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector counts notification fan-out outcomes so we can tell when the
// pipeline silently stops reaching people.
type Collector struct {
	activitiesCreated *prometheus.CounterVec
	recipientsAdded   prometheus.Counter
	emailsSent        prometheus.Counter
	emailsFailed      prometheus.Counter
	emailsSkipped     *prometheus.CounterVec
	fanOutLatency     prometheus.Histogram
	moderationQueued  prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qf_activities_created_total",
			Help: "Activity records created, by activity type.",
		}, []string{"activity_type"}),
		recipientsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qf_activity_recipients_total",
			Help: "Inbox entries handed out across all activities.",
		}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qf_notification_emails_sent_total",
			Help: "Instant notification emails successfully handed to the mailer.",
		}),
		emailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qf_notification_emails_failed_total",
			Help: "Instant notification emails that failed after retries.",
		}),
		emailsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qf_notification_emails_skipped_total",
			Help: "Instant emails not sent, by reason (cooldown, no_address).",
		}, []string{"reason"}),
		fanOutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qf_notification_fan_out_seconds",
			Help:    "Time spent resolving recipients for one activity.",
			Buckets: prometheus.DefBuckets,
		}),
		moderationQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qf_moderation_queue_entries_total",
			Help: "Revisions placed on the moderation queue.",
		}),
	}

	reg.MustRegister(
		c.activitiesCreated,
		c.recipientsAdded,
		c.emailsSent,
		c.emailsFailed,
		c.emailsSkipped,
		c.fanOutLatency,
		c.moderationQueued,
	)

	return c
}

func (c *Collector) RecordActivity(activityType string) {
	c.activitiesCreated.WithLabelValues(activityType).Inc()
}

func (c *Collector) RecordRecipients(count int) {
	c.recipientsAdded.Add(float64(count))
}

func (c *Collector) RecordEmailSent() {
	c.emailsSent.Inc()
}

func (c *Collector) RecordEmailFailed() {
	c.emailsFailed.Inc()
}

func (c *Collector) RecordEmailSkipped(reason string) {
	c.emailsSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordFanOutLatency(d time.Duration) {
	c.fanOutLatency.Observe(d.Seconds())
}

func (c *Collector) RecordModerationQueued() {
	c.moderationQueued.Inc()
}

// The default collector used when callers do not wire their own registry.
var Default = NewCollector(prometheus.DefaultRegisterer)
