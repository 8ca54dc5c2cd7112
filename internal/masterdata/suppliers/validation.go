package suppliers

import (
	"net/mail"
	"strings"

	appshared "github.com/odyssey-erp/factory-erp/internal/shared"
)

func (s *Service) validate(sup *Supplier) error {
	sup.Code = strings.ToUpper(strings.TrimSpace(sup.Code))
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Email = strings.TrimSpace(sup.Email)
	if sup.Code == "" {
		return appshared.Validation("supplier code is required")
	}
	if sup.Name == "" {
		return appshared.Validation("supplier name is required")
	}
	if sup.Email != "" {
		if _, err := mail.ParseAddress(sup.Email); err != nil {
			return appshared.Validation("supplier email is invalid")
		}
	}
	if sup.PaymentTermsDays < 0 {
		return appshared.Validation("payment terms cannot be negative")
	}
	return nil
}
