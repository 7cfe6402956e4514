package logging

import (
	"go.uber.org/zap/zapcore"
)

// applySampling wraps core so that Info and below get sampled while Error
// and above always pass through. A repair loop spamming warnings must not
// be able to drown out the errors that explain it.
func applySampling(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	sampled := zapcore.NewSamplerWithOptions(
		&belowErrorCore{core},
		cfg.Tick.Duration(),
		cfg.Initial,
		cfg.Thereafter,
	)

	return zapcore.NewTee(&errorOnlyCore{core}, sampled)
}

// errorOnlyCore passes entries at Error and above.
type errorOnlyCore struct {
	zapcore.Core
}

func (c *errorOnlyCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= zapcore.ErrorLevel && c.Core.Enabled(lvl)
}

func (c *errorOnlyCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *errorOnlyCore) With(fields []zapcore.Field) zapcore.Core {
	return &errorOnlyCore{c.Core.With(fields)}
}

// belowErrorCore passes entries below Error, the half that sampling applies to.
type belowErrorCore struct {
	zapcore.Core
}

func (c *belowErrorCore) Enabled(lvl zapcore.Level) bool {
	return lvl < zapcore.ErrorLevel && c.Core.Enabled(lvl)
}

func (c *belowErrorCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *belowErrorCore) With(fields []zapcore.Field) zapcore.Core {
	return &belowErrorCore{c.Core.With(fields)}
}
