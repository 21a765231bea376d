package descriptor

import "time"

// Dates are day counts relative to modified-julian-day zero; times are
// 1/10000ths of a second since midnight. Both the wire codec and the
// native marshaler use this calendar.
var dateEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// dateEpochUnix is dateEpoch as a Unix timestamp. The day count is
// computed arithmetically from it rather than via time.Sub, whose
// Duration result saturates a couple of centuries out.
const dateEpochUnix = -40587 * 86400

func EncodeDate(t time.Time) int32 {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int32((midnight.Unix() - dateEpochUnix) / 86400)
}

func DecodeDate(days int32) time.Time {
	return dateEpoch.AddDate(0, 0, int(days))
}

func EncodeTimeOfDay(t time.Time) int32 {
	return int32((t.Hour()*3600+t.Minute()*60+t.Second())*10000 + t.Nanosecond()/100000)
}

func DecodeTimeOfDay(units int32) time.Time {
	sec := int(units) / 10000
	frac := int(units) % 10000
	return time.Date(1, time.January, 1,
		sec/3600, sec/60%60, sec%60, frac*100000, time.UTC)
}

// CombineTimestamp merges a decoded date and time-of-day into one value.
func CombineTimestamp(date, tod time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), time.UTC)
}
