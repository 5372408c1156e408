// Package tegrastats parses the text log written by the Jetson
// tegrastats utility, reconstructs sub-second timestamps and converts
// logs into CSV tables.
package tegrastats

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout of the leading timestamp, local time.
const TimestampLayout = "01-02-2006 15:04:05"

// Readings at or below this temperature mean the sensor is unavailable.
const unavailableTemp = -200.0

var (
	timestampRe = regexp.MustCompile(`^(\d{2}-\d{2}-\d{4} \d{2}:\d{2}:\d{2})\b`)
	ramRe       = regexp.MustCompile(`RAM (\d+)/(\d+)MB(?: \(lfb (\d+)x(\d+)MB\))?`)
	swapRe      = regexp.MustCompile(`SWAP (\d+)/(\d+)MB \(cached (\d+)MB\)`)
	cpuRe       = regexp.MustCompile(`CPU \[([^\]]+)\]`)
	cpuEntryRe  = regexp.MustCompile(`^(\d+)%@(\d+)$`)
	emcRe       = regexp.MustCompile(`EMC_FREQ (\d+)%@(\d+)`)
	gr3dRe      = regexp.MustCompile(`GR3D_FREQ\s+(\d+)%@(?:\[(\d+)(?:,[^\]]*)?\]|(\d+))`)
	vicRe       = regexp.MustCompile(`VIC_FREQ (\d+)`)
	apeRe       = regexp.MustCompile(`APE (\d+)`)
	tempRe      = regexp.MustCompile(`\b([a-zA-Z0-9]+)@(-?\d+(?:\.\d+)?)C\b`)
	railRe      = regexp.MustCompile(`\b([A-Z0-9_]+) (\d+)mW/(\d+)mW\b`)
)

// Parser parses tegrastats lines. The zero value is not usable; use
// NewParser.
type Parser struct {
	loc *time.Location
}

// NewParser returns a Parser that reads timestamps in loc, or in local
// time when loc is nil.
func NewParser(loc *time.Location) Parser {
	if loc == nil {
		loc = time.Local
	}
	return Parser{loc: loc}
}

// Parse parses line with a local-time Parser.
func Parse(line string) (Record, bool) {
	return NewParser(nil).Parse(line)
}

// Parse extracts every recognised group from line. Lines that do not
// start with a timestamp are rejected. Each group is matched on its own,
// so a line missing some groups still yields the others.
func (p Parser) Parse(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}
	second, err := time.ParseInLocation(TimestampLayout, m[1], p.loc)
	if err != nil {
		return Record{}, false
	}

	rec := Record{
		TimestampRaw: m[1],
		Second:       second,
		TimestampNS:  second.UnixNano(),
		Fields:       Fields{},
	}
	f := rec.Fields

	if m := ramRe.FindStringSubmatch(line); m != nil {
		setInt(f, FieldRAMUsed, m[1])
		setInt(f, FieldRAMTotal, m[2])
		if m[3] != "" {
			setInt(f, FieldLFBBlocks, m[3])
			setInt(f, FieldLFBBlockMB, m[4])
		}
	}

	if m := swapRe.FindStringSubmatch(line); m != nil {
		setInt(f, FieldSwapUsed, m[1])
		setInt(f, FieldSwapTotal, m[2])
		setInt(f, FieldSwapCached, m[3])
	}

	if m := cpuRe.FindStringSubmatch(line); m != nil {
		parseCPU(f, m[1])
	}

	if m := emcRe.FindStringSubmatch(line); m != nil {
		setInt(f, FieldEMCPct, m[1])
		setInt(f, FieldEMCMHz, m[2])
	}

	if m := gr3dRe.FindStringSubmatch(line); m != nil {
		setInt(f, FieldGR3DPct, m[1])
		if m[2] != "" {
			setInt(f, FieldGR3DMHz, m[2])
		} else {
			setInt(f, FieldGR3DMHz, m[3])
		}
	}

	if m := vicRe.FindStringSubmatch(line); m != nil {
		setInt(f, FieldVICMHz, m[1])
	}
	if m := apeRe.FindStringSubmatch(line); m != nil {
		setInt(f, FieldAPEMHz, m[1])
	}

	for _, m := range tempRe.FindAllStringSubmatch(line, -1) {
		k := Temp(m[1])
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil || v <= unavailableTemp {
			f.declare(k)
			continue
		}
		f.set(k, v)
	}

	for _, m := range railRe.FindAllStringSubmatch(line, -1) {
		setInt(f, RailNow(m[1]), m[2])
		setInt(f, RailAvg(m[1]), m[3])
	}

	return rec, true
}

// parseCPU reads the comma list inside CPU [...]. The position of an
// entry is its core index; offline or unrecognised entries declare the
// core without a reading.
func parseCPU(f Fields, body string) {
	for core, entry := range strings.Split(body, ",") {
		m := cpuEntryRe.FindStringSubmatch(strings.TrimSpace(entry))
		if m == nil {
			f.declare(CPUPct(core))
			f.declare(CPUMHz(core))
			continue
		}
		setInt(f, CPUPct(core), m[1])
		setInt(f, CPUMHz(core), m[2])
	}
}

func setInt(f Fields, k Field, s string) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f.declare(k)
		return
	}
	f.set(k, float64(v))
}
