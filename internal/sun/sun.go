// Package sun gives sunrise and sunset for the site's coordinates in the
// site's time zone.
package sun

import (
	"errors"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// ErrNoSunriseSunset is returned for polar day or polar night, when the sun
// does not cross the horizon on the requested date.
var ErrNoSunriseSunset = errors.New("sun: no sunrise or sunset on this date")

// Times returns sunrise and sunset for the calendar date of day at the given
// coordinates. Latitude is north-positive and longitude east-positive, both
// in degrees. The results are in day's location.
func Times(day time.Time, latitude, longitude float64) (rise, set time.Time, err error) {
	y, m, d := day.Date()
	rise, set = sunrise.SunriseSunset(latitude, longitude, y, m, d)
	if rise.IsZero() || set.IsZero() {
		return time.Time{}, time.Time{}, ErrNoSunriseSunset
	}
	return rise.In(day.Location()), set.In(day.Location()), nil
}

// IsDaytime reports whether t lies strictly between sunrise and sunset.
func IsDaytime(t, rise, set time.Time) bool {
	return t.After(rise) && t.Before(set)
}
