package domain

import "time"

// ServiceType identifies the kind of church service attended.
type ServiceType string

const (
	ServiceSunday  ServiceType = "sunday_service"
	ServiceMidweek ServiceType = "midweek_service"
	ServicePrayer  ServiceType = "prayer_meeting"
	ServiceYouth   ServiceType = "youth_service"
	ServiceSpecial ServiceType = "special_event"
)

// Valid reports whether s is a known service type.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceSunday, ServiceMidweek, ServicePrayer, ServiceYouth, ServiceSpecial:
		return true
	}
	return false
}

// Attendance records one contact attending one service on one day.
type Attendance struct {
	ID          string      `json:"id" db:"id"`
	ContactID   string      `json:"contact_id" db:"contact_id"`
	Phone       string      `json:"phone" db:"phone"`
	ServiceType ServiceType `json:"service_type" db:"service_type"`
	ServiceDate time.Time   `json:"service_date" db:"service_date"`
	RecordedBy  string      `json:"recorded_by" db:"recorded_by"`
	RecordedAt  time.Time   `json:"recorded_at" db:"recorded_at"`

	ContactName *string `json:"contact_name,omitempty" db:"-"`
}

// AttendanceSummary aggregates attendance over a date range.
type AttendanceSummary struct {
	TotalAttendance int            `json:"total_attendance"`
	ByServiceType   map[string]int `json:"by_service_type"`
}
