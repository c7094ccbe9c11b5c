package forecast

// Align flattens the raw response for one location into per-day records.
// Series are matched to fields through the request order in params, and the
// whole response is checked before any record is built: every series must be
// present, have the same length and timestamps as the first one, and carry no
// null values. Output is in ascending date order.
func Align(location string, params []Parameter, raw RawResponse) ([]Record, error) {
	if len(params) == 0 {
		return nil, Malformed("%s: no parameters requested", location)
	}
	if len(raw.Data) != len(params) {
		return nil, Malformed("%s: expected %d series, got %d", location, len(params), len(raw.Data))
	}

	index := make(map[Field]int, len(params))
	for i, p := range params {
		if _, dup := index[p.Field]; dup {
			return nil, Malformed("%s: parameter %s requested twice", location, p.Field)
		}
		index[p.Field] = i
	}
	for _, f := range Fields {
		if _, ok := index[f]; !ok {
			return nil, Malformed("%s: no series requested for %s", location, f)
		}
	}

	series := make([][]SeriesPoint, len(params))
	for i, entry := range raw.Data {
		if entry.Parameter != "" && entry.Parameter != params[i].Code {
			return nil, Malformed("%s: series %d is %q, requested %q", location, i, entry.Parameter, params[i].Code)
		}
		if len(entry.Coordinates) == 0 {
			return nil, Malformed("%s: series %s has no coordinates", location, params[i].Code)
		}
		series[i] = entry.Coordinates[0].Dates
	}

	timeline := series[0]
	if len(timeline) == 0 {
		return nil, Malformed("%s: series %s is empty", location, params[0].Code)
	}
	for i := 1; i < len(timeline); i++ {
		if !timeline[i].Date.After(timeline[i-1].Date) {
			return nil, Malformed("%s: timestamps not strictly ascending at index %d", location, i)
		}
	}
	for i, s := range series {
		if len(s) != len(timeline) {
			return nil, Malformed("%s: series %s has %d values, %s has %d",
				location, params[i].Code, len(s), params[0].Code, len(timeline))
		}
		for j, pt := range s {
			if !pt.Date.Equal(timeline[j].Date) {
				return nil, Malformed("%s: series %s timestamp %d is %s, expected %s",
					location, params[i].Code, j, pt.Date.UTC().Format("2006-01-02T15:04:05Z"), timeline[j].Date.UTC().Format("2006-01-02T15:04:05Z"))
			}
			if pt.Value == nil {
				return nil, Malformed("%s: series %s has null value at %d", location, params[i].Code, j)
			}
		}
	}

	records := make([]Record, len(timeline))
	for j, pt := range timeline {
		rec := Record{Location: location, Date: pt.Date.UTC()}
		for _, f := range Fields {
			rec.set(f, *series[index[f]][j].Value)
		}
		records[j] = rec
	}
	return records, nil
}
