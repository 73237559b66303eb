package display

import (
	"strconv"
	"strings"

	"github.com/seamd/seamd/internal/logger"
)

// RefreshRateForValue applies the refresh-rate setting to a rate
// reported by a client. The setting is either "auto" (keep the client
// value), a percentage such as "50%", or an absolute cap in Hz.
// Values below 1000 are scaled by multiplier so that rates can be
// compared at fixed-point precision without floats on the wire.
func RefreshRateForValue(setting string, value, multiplier int) int {
	setting = strings.TrimSpace(strings.ToLower(setting))
	switch setting {
	case "", "auto", "none":
		return value
	}
	if strings.HasSuffix(setting, "%") {
		pct, err := strconv.Atoi(strings.TrimSuffix(setting, "%"))
		if err != nil || pct <= 0 {
			logger.Warnf("Warning: invalid refresh-rate value %q", setting)
			return value
		}
		return value * pct / 100
	}
	v, err := strconv.Atoi(setting)
	if err != nil || v <= 0 {
		logger.Warnf("Warning: invalid refresh-rate value %q", setting)
		return value
	}
	if v < 1000 {
		v *= multiplier
	}
	if value > 0 && value < v {
		return value
	}
	return v
}

// clientRefreshRate picks the refresh rate to use for one client: the
// lowest of its monitor rates, falling back to the legacy single
// vrefresh value. Monitor rates arrive pre-multiplied by 1000.
func (d *Negotiator) clientRefreshRate(src Source) int {
	var rates []int
	ds := src.Desktop()
	for _, mon := range ds.Monitors {
		if v := mon.Int("refresh-rate", 0); v > 0 {
			rates = append(rates, v)
		}
	}
	if len(rates) == 0 && ds.VRefresh > 0 {
		rates = append(rates, ds.VRefresh*1000)
	}
	rate := 0
	for i, v := range rates {
		if i == 0 || v < rate {
			rate = v
		}
	}
	if d.refreshRate != "" {
		rate = RefreshRateForValue(d.refreshRate, rate, 1000)
	}
	return rate / 1000
}
