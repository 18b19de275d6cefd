package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type goalKey struct {
	agentType string
	outcome   string
}

type goalCollector struct {
	mu        sync.Mutex
	outcomes  map[goalKey]uint64
	duration  map[string]*histogram
	queueWait map[string]*histogram
}

var goalMetrics = &goalCollector{
	outcomes:  make(map[goalKey]uint64),
	duration:  make(map[string]*histogram),
	queueWait: make(map[string]*histogram),
}

// ObserveGoalProcessed records the outcome and duration of one goal
// execution attempt. Outcome is one of succeeded, retried or failed.
func ObserveGoalProcessed(agentType, outcome string, duration time.Duration) {
	goalMetrics.observe(agentType, outcome, duration)
}

func (c *goalCollector) observe(agentType, outcome string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes[goalKey{agentType: agentType, outcome: outcome}]++

	hist := c.duration[agentType]
	if hist == nil {
		hist = newGoalHistogram()
		c.duration[agentType] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveGoalQueueWait records how long a goal sat in the named queue
// before a worker picked it up.
func ObserveGoalQueueWait(queue string, wait time.Duration) {
	goalMetrics.observeQueueWait(queue, wait)
}

func (c *goalCollector) observeQueueWait(queue string, wait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hist := c.queueWait[queue]
	if hist == nil {
		hist = newGoalHistogram()
		c.queueWait[queue] = hist
	}
	hist.observe(wait.Seconds())
}

// Goal executions span tool calls and sub-goal delegation, so the buckets
// reach much further than the HTTP ones.
func newGoalHistogram() *histogram {
	buckets := []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (c *goalCollector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type outcomeMetric struct {
		goalKey
		value uint64
	}
	type durationMetric struct {
		agentType string
		buckets   []float64
		counts    []uint64
		sum       float64
		count     uint64
	}

	outs := make([]outcomeMetric, 0, len(c.outcomes))
	for key, value := range c.outcomes {
		outs = append(outs, outcomeMetric{goalKey: key, value: value})
	}
	durs := make([]durationMetric, 0, len(c.duration))
	for agentType, hist := range c.duration {
		durs = append(durs, durationMetric{
			agentType: agentType,
			buckets:   append([]float64(nil), hist.buckets...),
			counts:    append([]uint64(nil), hist.counts...),
			sum:       hist.sum,
			count:     hist.count,
		})
	}
	waits := make([]durationMetric, 0, len(c.queueWait))
	for queue, hist := range c.queueWait {
		waits = append(waits, durationMetric{
			agentType: queue,
			buckets:   append([]float64(nil), hist.buckets...),
			counts:    append([]uint64(nil), hist.counts...),
			sum:       hist.sum,
			count:     hist.count,
		})
	}

	sort.Slice(outs, func(i, j int) bool {
		if outs[i].agentType == outs[j].agentType {
			return outs[i].outcome < outs[j].outcome
		}
		return outs[i].agentType < outs[j].agentType
	})
	sort.Slice(durs, func(i, j int) bool {
		return durs[i].agentType < durs[j].agentType
	})
	sort.Slice(waits, func(i, j int) bool {
		return waits[i].agentType < waits[j].agentType
	})

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP agentmesh_goals_processed_total Total number of goal execution attempts by outcome.\n")
	builder.WriteString("# TYPE agentmesh_goals_processed_total counter\n")
	for _, metric := range outs {
		builder.WriteString(fmt.Sprintf("agentmesh_goals_processed_total{agent_type=\"%s\",outcome=\"%s\"} %d\n",
			escape(metric.agentType), escape(metric.outcome), metric.value))
	}

	builder.WriteString("# HELP agentmesh_goal_duration_seconds Goal execution duration in seconds.\n")
	builder.WriteString("# TYPE agentmesh_goal_duration_seconds histogram\n")
	for _, metric := range durs {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("agentmesh_goal_duration_seconds_bucket{agent_type=\"%s\",le=\"%s\"} %d\n",
				escape(metric.agentType), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("agentmesh_goal_duration_seconds_bucket{agent_type=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.agentType), metric.count))
		builder.WriteString(fmt.Sprintf("agentmesh_goal_duration_seconds_sum{agent_type=\"%s\"} %s\n",
			escape(metric.agentType), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("agentmesh_goal_duration_seconds_count{agent_type=\"%s\"} %d\n",
			escape(metric.agentType), metric.count))
	}

	builder.WriteString("# HELP agentmesh_goal_queue_wait_seconds Time goals spent queued before a worker picked them up.\n")
	builder.WriteString("# TYPE agentmesh_goal_queue_wait_seconds histogram\n")
	for _, metric := range waits {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("agentmesh_goal_queue_wait_seconds_bucket{queue=\"%s\",le=\"%s\"} %d\n",
				escape(metric.agentType), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("agentmesh_goal_queue_wait_seconds_bucket{queue=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.agentType), metric.count))
		builder.WriteString(fmt.Sprintf("agentmesh_goal_queue_wait_seconds_sum{queue=\"%s\"} %s\n",
			escape(metric.agentType), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("agentmesh_goal_queue_wait_seconds_count{queue=\"%s\"} %d\n",
			escape(metric.agentType), metric.count))
	}

	return builder.String()
}
