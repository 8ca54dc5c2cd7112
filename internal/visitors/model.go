package visitors

import (
	"errors"
	"time"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Status string

const (
	StatusExpected   Status = "expected"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusCancelled  Status = "cancelled"
)

// Transitions lists the allowed moves of a visit.
var Transitions = shared.Transitions[Status]{
	StatusExpected:  {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {StatusCheckedOut},
}

var ErrNotFound = errors.New("visitor not found")

type Visitor struct {
	ID            int64      `json:"id"`
	CompanyID     int64      `json:"companyId"`
	VisitorNumber string     `json:"visitorNumber"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Company       string     `json:"company"`
	Purpose       string     `json:"purpose"`
	HostName      string     `json:"hostName"`
	IDNumber      string     `json:"idNumber,omitempty"`
	BadgeNumber   string     `json:"badgeNumber,omitempty"`
	ExpectedAt    *time.Time `json:"expectedAt,omitempty"`
	Status        Status     `json:"status"`
	CheckInAt     *time.Time `json:"checkInAt,omitempty"`
	CheckOutAt    *time.Time `json:"checkOutAt,omitempty"`
	Notes         string     `json:"notes"`
	CreatedBy     int64      `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Duration is the time spent on site; zero until the visitor leaves.
func (v Visitor) Duration() time.Duration {
	if v.CheckInAt == nil || v.CheckOutAt == nil {
		return 0
	}
	return v.CheckOutAt.Sub(*v.CheckInAt)
}

// Stats summarises visits for a single day.
type Stats struct {
	Date       string         `json:"date"`
	Expected   int            `json:"expected"`
	OnSite     int            `json:"onSite"`
	CheckedOut int            `json:"checkedOut"`
	ByStatus   map[Status]int `json:"byStatus"`
}
