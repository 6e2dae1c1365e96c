package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the wire format for the datetime columns. All stored
// datetimes carry the reference timezone offset.
const TimeLayout = time.RFC3339

// StringList is a JSON-array TEXT column.
type StringList []string

// Value marshals the list to its JSON column representation.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan unmarshals the JSON column representation.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	}
	return fmt.Errorf("cannot scan %T into StringList", src)
}

// BookingRecord is one persisted meeting row.
type BookingRecord struct {
	EventID             string     `db:"event_id" json:"event_id"`
	Title               string     `db:"title" json:"title"`
	CompanyName         string     `db:"company_name" json:"company_name"`
	PersonNames         StringList `db:"person_names" json:"person_names"`
	StartDatetime       string     `db:"start_datetime" json:"start_datetime"`
	EndDatetime         string     `db:"end_datetime" json:"end_datetime"`
	Timezone            string     `db:"timezone" json:"timezone"`
	Attendees           StringList `db:"attendees" json:"attendees"`
	Location            string     `db:"location" json:"location"`
	SourceCalendar      string     `db:"source_calendar" json:"source_calendar"`
	ExtractedConfidence float64    `db:"extracted_confidence" json:"extracted_confidence"`
	Status              Status     `db:"status" json:"status"`
	UpdatedAt           string     `db:"updated_at" json:"updated_at"`
	RunID               string     `db:"run_id" json:"run_id"`
}

// StartTime parses the stored start datetime.
func (r *BookingRecord) StartTime() (time.Time, error) {
	return time.Parse(TimeLayout, r.StartDatetime)
}

// UpdatedTime parses the stored update stamp.
func (r *BookingRecord) UpdatedTime() (time.Time, error) {
	return time.Parse(TimeLayout, r.UpdatedAt)
}

// FormatTime renders a timestamp in the reference timezone for the
// datetime columns.
func FormatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimeLayout)
}
