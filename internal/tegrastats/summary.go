package tegrastats

import (
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// Summary is a quick look at a converted log.
type Summary struct {
	Samples  int
	Duration time.Duration
	// FrequencyHz is Samples over Duration, zero when Duration is zero.
	FrequencyHz float64

	SOCPowerMean *float64
	SOCPowerMax  *float64
	EMCMean      *float64
	CPU0Mean     *float64
}

// Summarize expects records in Reconstruct order.
func Summarize(records []Record) Summary {
	s := Summary{Samples: len(records)}
	if len(records) == 0 {
		return s
	}

	s.Duration = time.Duration(records[len(records)-1].TimestampNS - records[0].TimestampNS)
	if s.Duration > 0 {
		s.FrequencyHz = float64(s.Samples) / s.Duration.Seconds()
	}

	if soc := values(records, RailNow("VDD_SOC")); len(soc) > 0 {
		s.SOCPowerMean = lo.ToPtr(lo.Mean(soc))
		s.SOCPowerMax = lo.ToPtr(lo.Max(soc))
	}
	if emc := values(records, FieldEMCPct); len(emc) > 0 {
		s.EMCMean = lo.ToPtr(lo.Mean(emc))
	}
	if cpu0 := values(records, CPUPct(0)); len(cpu0) > 0 {
		s.CPU0Mean = lo.ToPtr(lo.Mean(cpu0))
	}
	return s
}

// LogValue groups the summary under power, emc, cpu and sampling keys.
func (s Summary) LogValue() slog.Value {
	var attrs []slog.Attr
	if s.SOCPowerMean != nil {
		attrs = append(attrs, slog.Group("power",
			"VDD_SOC_mw_now_mean", *s.SOCPowerMean,
			"VDD_SOC_mw_now_max", *s.SOCPowerMax,
		))
	}
	if s.EMCMean != nil {
		attrs = append(attrs, slog.Group("emc", "emc_pct_mean", *s.EMCMean))
	}
	if s.CPU0Mean != nil {
		attrs = append(attrs, slog.Group("cpu", "cpu0_pct_mean", *s.CPU0Mean))
	}
	attrs = append(attrs, slog.Group("sampling",
		"nb_samples", s.Samples,
		"duration_s", s.Duration.Seconds(),
		"freq_Hz", s.FrequencyHz,
	))
	return slog.GroupValue(attrs...)
}

func values(records []Record, k Field) []float64 {
	return lo.FilterMap(records, func(r Record, _ int) (float64, bool) {
		return r.Fields.Get(k)
	})
}
