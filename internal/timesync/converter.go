package timesync

import (
	"fmt"
	"time"
)

// Layout of the date and time columns of atop parseable output.
const (
	DateLayout = "2006/01/02"
	TimeLayout = "15:04:05"
)

// Converter handles conversion from atop epoch seconds to wall-clock time in
// the zone of the recording host.
type Converter struct {
	zone *time.Location
}

// NewConverter creates a converter rendering times in UTC.
func NewConverter() *Converter {
	return &Converter{zone: time.UTC}
}

// NewConverterFromSample derives the recording host's UTC offset from one
// line: its epoch and the local date and time atop printed next to it.
// The offset is rounded to the nearest minute.
func NewConverterFromSample(epoch int64, date, clock string) (*Converter, error) {
	local, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample time %q %q: %w", date, clock, err)
	}

	offset := local.Sub(time.Unix(epoch, 0)).Round(time.Minute)
	if offset < -14*time.Hour || offset > 14*time.Hour {
		return nil, fmt.Errorf("sample time %s %s is %s away from epoch %d", date, clock, offset, epoch)
	}
	if offset == 0 {
		return NewConverter(), nil
	}
	return &Converter{zone: time.FixedZone(zoneName(offset), int(offset.Seconds()))}, nil
}

// EpochToWallClock converts epoch seconds to a time in the converter's zone.
func (c *Converter) EpochToWallClock(epoch int64) time.Time {
	return time.Unix(epoch, 0).In(c.zone)
}

// Format renders epoch seconds as "2006-01-02 15:04:05" in the converter's zone.
func (c *Converter) Format(epoch int64) string {
	return c.EpochToWallClock(epoch).Format(time.DateTime)
}

// Zone returns the location used for conversions.
func (c *Converter) Zone() *time.Location {
	return c.zone
}

func zoneName(offset time.Duration) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%c%02d:%02d", sign, hours, minutes)
}
