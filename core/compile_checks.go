package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ EffectDispatcher = NopEffectDispatcher{}
	_ MetricsRecorder  = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
