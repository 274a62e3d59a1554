package metrics

import "time"

func (m *ServerMetrics) SetContentSource(source string) {
	m.contentSource.Reset()
	m.contentSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetContentLoadedTimestamp(t time.Time) {
	m.contentLoadedTimestamp.Set(float64(t.Unix()))
}

// SetContentBundle records the active bundle hash; an empty hash clears it.
func (m *ServerMetrics) SetContentBundle(sha256 string) {
	m.contentBundleInfo.Reset()
	if sha256 != "" {
		m.contentBundleInfo.WithLabelValues(sha256).Set(1)
	}
}

// IncContentReload counts a content directory reload; result is "ok" or "error".
func (m *ServerMetrics) IncContentReload(result string) {
	m.contentReloadsTotal.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncWatcherPolls()                    { m.watcherPollsTotal.Inc() }
func (m *ServerMetrics) IncWatcherSwaps()                    { m.watcherSwapsTotal.Inc() }
func (m *ServerMetrics) IncWatcherError(errType string)      { m.watcherErrorsTotal.WithLabelValues(errType).Inc() }
func (m *ServerMetrics) ObserveBundleLoadDuration(s float64) { m.bundleLoadDuration.Observe(s) }
func (m *ServerMetrics) SetWatcherLastSuccess(t time.Time)   { m.watcherLastSuccessTs.Set(float64(t.Unix())) }
func (m *ServerMetrics) SetWatcherStale(stale bool)          { m.watcherStale.Set(boolGauge(stale)) }
