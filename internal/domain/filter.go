package domain

// DateField names one part of a record's start or end date.
type DateField int

const (
	StartYear DateField = iota
	StartMonth
	StartDay
	EndYear
	EndMonth
	EndDay
)

// DateFields lists every date part, in table column order.
var DateFields = []DateField{StartYear, StartMonth, StartDay, EndYear, EndMonth, EndDay}

// Column returns the database column name of the date part.
func (f DateField) Column() string {
	switch f {
	case StartYear:
		return "Start_Date_Year"
	case StartMonth:
		return "Start_Date_Month"
	case StartDay:
		return "Start_Date_Day"
	case EndYear:
		return "End_Date_Year"
	case EndMonth:
		return "End_Date_Month"
	case EndDay:
		return "End_Date_Day"
	default:
		return ""
	}
}

func (f DateField) ptr(start, end *Date) *OptInt {
	switch f {
	case StartYear:
		return &start.Year
	case StartMonth:
		return &start.Month
	case StartDay:
		return &start.Day
	case EndYear:
		return &end.Year
	case EndMonth:
		return &end.Month
	case EndDay:
		return &end.Day
	default:
		return nil
	}
}

// EventsOfClass returns the events whose type classification equals class.
func EventsOfClass(events []Event, class string) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.MainEvent == class {
			out = append(out, e)
		}
	}
	return out
}

// EventIDSet collects the distinct IDs of events.
func EventIDSet(events []Event) map[string]struct{} {
	set := make(map[string]struct{}, len(events))
	for _, e := range events {
		set[e.ID] = struct{}{}
	}
	return set
}

// RecordEventIDSet collects the distinct event IDs referenced by records.
func RecordEventIDSet(records []ImpactRecord) map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range records {
		set[r.EventID] = struct{}{}
	}
	return set
}

// FilterByEvents keeps records whose event ID is in allowed.
func FilterByEvents(records []ImpactRecord, allowed map[string]struct{}) []ImpactRecord {
	out := make([]ImpactRecord, 0, len(records))
	for _, r := range records {
		if _, ok := allowed[r.EventID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// EventDates holds the event-level fallback dates for one event.
type EventDates struct {
	Start Date
	End   Date
}

// IndexEventDates maps event ID to its dates. When an ID appears more than
// once the first occurrence wins, so every impact row matches at most one
// date row.
func IndexEventDates(events []Event) map[string]EventDates {
	idx := make(map[string]EventDates, len(events))
	for _, e := range events {
		if _, seen := idx[e.ID]; seen {
			continue
		}
		idx[e.ID] = EventDates{Start: e.Start, End: e.End}
	}
	return idx
}

// BackfillDates fills each missing date part listed in fields from the
// record's event. Records without an event entry pass through unchanged.
// The output has exactly one row per input row, in input order.
func BackfillDates(records []ImpactRecord, dates map[string]EventDates, fields []DateField) []ImpactRecord {
	out := make([]ImpactRecord, len(records))
	for i, r := range records {
		ev, ok := dates[r.EventID]
		if ok {
			for _, f := range fields {
				dst := f.ptr(&r.Start, &r.End)
				if dst == nil || dst.Valid {
					continue
				}
				*dst = *f.ptr(&ev.Start, &ev.End)
			}
		}
		out[i] = r
	}
	return out
}

// FilterStartYearAfter keeps records whose start year is strictly greater
// than year. Records without a start year are dropped.
func FilterStartYearAfter(records []ImpactRecord, year int) []ImpactRecord {
	out := make([]ImpactRecord, 0, len(records))
	for _, r := range records {
		if r.Start.Year.Valid && r.Start.Year.Value > year {
			out = append(out, r)
		}
	}
	return out
}
