package warehouses

import (
	"strings"

	appshared "github.com/odyssey-erp/factory-erp/internal/shared"
)

func (s *Service) validate(w *Warehouse) error {
	w.Code = strings.ToUpper(strings.TrimSpace(w.Code))
	w.Name = strings.TrimSpace(w.Name)
	if w.Code == "" {
		return appshared.Validation("warehouse code is required")
	}
	if w.Name == "" {
		return appshared.Validation("warehouse name is required")
	}
	return nil
}
