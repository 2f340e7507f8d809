package telemetry

// The upstream feeds occasionally date-stamp secondary event times (gust,
// daily high, daily low) for the day after the observation when the event
// actually happened shortly before midnight on the observation's civil day.
// A 00:05 observation then carries a 23:55 event time stamped for the day
// that has not happened yet.

// CorrectObservation subtracts one day from each secondary event timestamp
// that parses strictly later than the observation time. Observations with a
// missing or unparsable obs_time are left untouched. The transform is
// idempotent: after correction every secondary timestamp is <= obs_time.
func CorrectObservation(o *Observation) {
	if o.ObsTime == nil {
		return
	}
	base, ok := ParseCivil(*o.ObsTime)
	if !ok {
		return
	}

	for _, field := range []**string{&o.GustTime, &o.TMaxTime, &o.TMinTime} {
		if *field == nil {
			continue
		}
		ts, ok := ParseCivil(**field)
		if !ok {
			continue
		}
		if ts.After(base) {
			fixed := FormatCivil(ts.AddDate(0, 0, -1))
			*field = &fixed
		}
	}
}

// CorrectRows applies CorrectObservation to every row in place.
func CorrectRows(rows []Observation) {
	for i := range rows {
		CorrectObservation(&rows[i])
	}
}
