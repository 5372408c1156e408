package tegrastats

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/samber/lo"
)

// Field names a telemetry column. Names are built only by the constants
// and constructors below.
type Field string

const (
	FieldRAMUsed    Field = "ram_used_mb"
	FieldRAMTotal   Field = "ram_total_mb"
	FieldLFBBlocks  Field = "lfb_blocks"
	FieldLFBBlockMB Field = "lfb_block_mb"
	FieldSwapUsed   Field = "swap_used_mb"
	FieldSwapTotal  Field = "swap_total_mb"
	FieldSwapCached Field = "swap_cached_mb"
	FieldEMCPct     Field = "emc_pct"
	FieldEMCMHz     Field = "emc_mhz"
	FieldGR3DPct    Field = "gr3d_pct"
	FieldGR3DMHz    Field = "gr3d_mhz"
	FieldVICMHz     Field = "vic_mhz"
	FieldAPEMHz     Field = "ape_mhz"
)

func CPUPct(core int) Field { return Field(fmt.Sprintf("cpu%d_pct", core)) }
func CPUMHz(core int) Field { return Field(fmt.Sprintf("cpu%d_mhz", core)) }

// Temp names the temperature column of a sensor, in degrees Celsius.
func Temp(sensor string) Field { return Field("temp_" + sensor + "_C") }

// RailNow and RailAvg name the instantaneous and average power of a
// rail, in milliwatts.
func RailNow(rail string) Field { return Field(rail + "_mw_now") }
func RailAvg(rail string) Field { return Field(rail + "_mw_avg") }

// Value is a field observed in a line. Valid is false when the line
// declared the field but reported no usable reading, such as an offline
// core or a disconnected sensor.
type Value struct {
	V     float64
	Valid bool
}

// Fields holds the fields observed in one line. Fields missing from the
// map were not reported at all.
type Fields map[Field]Value

func (f Fields) set(k Field, v float64) {
	f[k] = Value{V: v, Valid: true}
}

func (f Fields) declare(k Field) {
	f[k] = Value{}
}

// Get returns the value of k and whether it holds a usable reading.
func (f Fields) Get(k Field) (float64, bool) {
	v, ok := f[k]
	if !ok || !v.Valid {
		return 0, false
	}
	return v.V, true
}

// Declared reports whether the line reported k, usable or not.
func (f Fields) Declared(k Field) bool {
	_, ok := f[k]
	return ok
}

// Names returns every declared field, sorted.
func (f Fields) Names() []Field {
	names := lo.Keys(f)
	slices.Sort(names)
	return names
}

// Format renders k for a table cell; unavailable and absent fields are
// empty.
func (f Fields) Format(k Field) string {
	v, ok := f.Get(k)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
