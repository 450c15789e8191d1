package domain

import "time"

const (
	// TimestampLayout is ISO-8601 with second precision and no zone suffix; rows are always UTC.
	TimestampLayout = "2006-01-02T15:04:05"

	// QualityGood is the only quality flag emitted today.
	QualityGood = 1
)

// Row is a positional tuple handed to a sink.
type Row []any

// FormatTimestamp renders t in UTC truncated to the second.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// CyclicSample is a persisted tag value.
type CyclicSample struct {
	TagName    string
	Value      any
	Timestamp  time.Time
	Quality    int
	TimezoneID string
}

// Row returns (name, value, time, quality, tz).
func (s CyclicSample) Row() Row {
	return Row{s.TagName, s.Value, FormatTimestamp(s.Timestamp), s.Quality, s.TimezoneID}
}

// AlarmEvent is one bit transition of an alarm word.
type AlarmEvent struct {
	ProcedureCode int
	SeverityClass int
	State         int
	Description   string
	Tag           string
	BitPosition   int
	Timestamp     time.Time
	TimezoneID    string
}

// Row returns (procedure, class, state, description, time, tz).
func (e AlarmEvent) Row() Row {
	return Row{e.ProcedureCode, e.SeverityClass, e.State, e.Description, FormatTimestamp(e.Timestamp), e.TimezoneID}
}
