package agents

import (
	"math"
	"sync"
)

// baselineWindow 是滚动基线保留的数据点数量。
const baselineWindow = 100

// anomaly 描述一次偏离基线的指标观测。
type anomaly struct {
	Metric       string  `json:"metric"`
	CurrentValue float64 `json:"current_value"`
	BaselineMean float64 `json:"baseline_mean"`
	StdDev       float64 `json:"std_dev"`
	ZScore       float64 `json:"z_score"`
	Direction    string  `json:"direction"`
	Severity     string  `json:"severity"`
}

// trend 汇总一个指标基线的统计特征。
type trend struct {
	Mean           float64 `json:"mean"`
	StdDev         float64 `json:"std_dev"`
	Current        float64 `json:"current"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	TrendDirection float64 `json:"trend_direction"`
	DataPoints     int     `json:"data_points"`
}

// metricState 持有监控智能体的滚动基线与活跃告警。
// 状态由持锁方法独占修改，生命周期与智能体进程一致。
type metricState struct {
	mu           sync.Mutex
	baselines    map[string][]float64
	activeAlerts map[string]map[string]any
}

func newMetricState() *metricState {
	return &metricState{
		baselines:    make(map[string][]float64),
		activeAlerts: make(map[string]map[string]any),
	}
}

// Observe 把一次指标观测追加进滚动基线。
func (s *metricState) Observe(metric string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := append(s.baselines[metric], value)
	if len(values) > baselineWindow {
		values = values[len(values)-baselineWindow:]
	}
	s.baselines[metric] = values
}

// Latest 返回指标的最新观测值。
func (s *metricState) Latest(metric string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.baselines[metric]
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// Series 返回指标基线的副本。
func (s *metricState) Series(metric string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.baselines[metric]
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// MetricCount 返回当前追踪的指标数量。
func (s *metricState) MetricCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.baselines)
}

// Anomalies 用 z 分数对比最新值与基线，返回超出 sigma 阈值的指标。
// 数据点不足 10 个的指标不参与评估。
func (s *metricState) Anomalies(sigmaThreshold float64) []anomaly {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []anomaly
	for metric, values := range s.baselines {
		if len(values) < 10 {
			continue
		}
		mean, stdDev := meanStdDev(values)
		if stdDev == 0 {
			stdDev = 0.001
		}
		current := values[len(values)-1]
		z := (current - mean) / stdDev
		if math.Abs(z) <= sigmaThreshold {
			continue
		}

		direction := "above"
		if z < 0 {
			direction = "below"
		}
		severity := "warning"
		if math.Abs(z) > 4 {
			severity = "critical"
		}
		found = append(found, anomaly{
			Metric:       metric,
			CurrentValue: round2(current),
			BaselineMean: round2(mean),
			StdDev:       round2(stdDev),
			ZScore:       round2(z),
			Direction:    direction,
			Severity:     severity,
		})
	}
	return found
}

// Trends 汇总数据点不少于 5 个的指标统计，趋势方向取最近
// 5 个点均值与之前 5 个点均值之差。
func (s *metricState) Trends() map[string]trend {
	s.mu.Lock()
	defer s.mu.Unlock()

	trends := make(map[string]trend)
	for metric, values := range s.baselines {
		if len(values) < 5 {
			continue
		}
		mean, stdDev := meanStdDev(values)
		direction := 0.0
		if len(values) >= 10 {
			recent := meanOf(values[len(values)-5:])
			older := meanOf(values[len(values)-10 : len(values)-5])
			direction = recent - older
		}
		trends[metric] = trend{
			Mean:           round2(mean),
			StdDev:         round2(stdDev),
			Current:        values[len(values)-1],
			Min:            minOf(values),
			Max:            maxOf(values),
			TrendDirection: round2(direction),
			DataPoints:     len(values),
		}
	}
	return trends
}

// Summaries 返回每个指标的基线摘要，用于仪表盘。
func (s *metricState) Summaries() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]any)
	for metric, values := range s.baselines {
		if len(values) == 0 {
			continue
		}
		out[metric] = map[string]any{
			"current":     values[len(values)-1],
			"mean":        round2(meanOf(values)),
			"min":         minOf(values),
			"max":         maxOf(values),
			"data_points": len(values),
		}
	}
	return out
}

// TriggerAlert 登记一条告警，返回是否为新触发。
func (s *metricState) TriggerAlert(name string, alert map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeAlerts[name]; exists {
		return false
	}
	s.activeAlerts[name] = alert
	return true
}

// ResolveAlert 撤销一条告警，返回该告警此前是否活跃。
func (s *metricState) ResolveAlert(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeAlerts[name]; !exists {
		return false
	}
	delete(s.activeAlerts, name)
	return true
}

// ActiveAlerts 返回活跃告警的副本列表。
func (s *metricState) ActiveAlerts() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]any, 0, len(s.activeAlerts))
	for _, alert := range s.activeAlerts {
		out = append(out, alert)
	}
	return out
}

// ActiveAlertCount 返回活跃告警数量。
func (s *metricState) ActiveAlertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeAlerts)
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanStdDev(values []float64) (float64, float64) {
	mean := meanOf(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	if variance <= 0 {
		return mean, 0
	}
	return mean, math.Sqrt(variance)
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
