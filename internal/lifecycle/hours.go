package lifecycle

import "time"

var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// MarketOpen reports whether the NYSE session is active: Monday through
// Friday, 9:30 AM until 3:50 PM Eastern. The early cutoff leaves room to
// work orders before the close.
func MarketOpen(now time.Time) bool {
	et := now.In(eastern)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 15*60+50
}

// ExpiryInstant pins an expiry date to the 4:00 PM Eastern close, the fixed
// instant time-to-expiry is measured against every cycle.
func ExpiryInstant(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 16, 0, 0, 0, eastern)
}

// yearsUntil converts the wall-clock gap to expiry into year fractions.
func yearsUntil(now, expiry time.Time) float64 {
	return expiry.Sub(now).Seconds() / (365 * 24 * 3600)
}
