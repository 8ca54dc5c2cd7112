package visitors

import "time"

type CreateVisitorRequest struct {
	Name       string     `json:"name" validate:"required,max=150"`
	Phone      string     `json:"phone" validate:"omitempty,max=30"`
	Company    string     `json:"company" validate:"max=150"`
	Purpose    string     `json:"purpose" validate:"required,max=255"`
	HostName   string     `json:"hostName" validate:"required,max=150"`
	IDNumber   string     `json:"idNumber" validate:"max=50"`
	ExpectedAt *time.Time `json:"expectedAt"`
	Notes      string     `json:"notes"`
}

type UpdateVisitorRequest struct {
	Name       *string    `json:"name" validate:"omitempty,max=150"`
	Phone      *string    `json:"phone" validate:"omitempty,max=30"`
	Company    *string    `json:"company" validate:"omitempty,max=150"`
	Purpose    *string    `json:"purpose" validate:"omitempty,max=255"`
	HostName   *string    `json:"hostName" validate:"omitempty,max=150"`
	ExpectedAt *time.Time `json:"expectedAt"`
	Notes      *string    `json:"notes"`
}

type CheckInRequest struct {
	BadgeNumber string `json:"badgeNumber" validate:"max=30"`
}

type ListVisitorsRequest struct {
	Status Status
	Date   *time.Time
	Search string
}
