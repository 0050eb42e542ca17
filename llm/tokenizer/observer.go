package tokenizer

import "time"

// Observer 接收核心的计数与加载事件，用于指标上报。
// internal/metrics.Collector 实现了该接口。
type Observer interface {
	ObserveCount(family string, tokens int, duration time.Duration, err error)
	ObserveArtifactLoad(tokenizerID string, duration time.Duration, err error)
	ObserveRegistryLookup(hit bool)
	ObserveCountCache(hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveCount(string, int, time.Duration, error)   {}
func (nopObserver) ObserveArtifactLoad(string, time.Duration, error) {}
func (nopObserver) ObserveRegistryLookup(bool)                       {}
func (nopObserver) ObserveCountCache(bool)                           {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	m := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}

func (m multiObserver) ObserveCount(family string, tokens int, duration time.Duration, err error) {
	for _, o := range m {
		o.ObserveCount(family, tokens, duration, err)
	}
}

func (m multiObserver) ObserveArtifactLoad(tokenizerID string, duration time.Duration, err error) {
	for _, o := range m {
		o.ObserveArtifactLoad(tokenizerID, duration, err)
	}
}

func (m multiObserver) ObserveRegistryLookup(hit bool) {
	for _, o := range m {
		o.ObserveRegistryLookup(hit)
	}
}

func (m multiObserver) ObserveCountCache(hit bool) {
	for _, o := range m {
		o.ObserveCountCache(hit)
	}
}
