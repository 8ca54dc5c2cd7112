package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Module names a protected area of the API.
type Module string

const (
	ModuleInventory      Module = "inventory"
	ModuleProduction     Module = "production"
	ModulePurchaseOrders Module = "purchase_orders"
	ModuleQuotations     Module = "quotations"
	ModuleCustomerOrders Module = "customer_orders"
	ModuleInvoices       Module = "invoices"
	ModuleVisitors       Module = "visitors"
	ModuleRoles          Module = "roles"
	ModuleReports        Module = "reports"
	ModuleMasterData     Module = "masterdata"
)

// Modules lists every known module in display order.
var Modules = []Module{
	ModuleInventory, ModuleProduction, ModulePurchaseOrders, ModuleQuotations, ModuleCustomerOrders,
	ModuleInvoices, ModuleVisitors, ModuleRoles, ModuleReports, ModuleMasterData,
}

// Action is a bit in a module's permission mask.
type Action uint16

const (
	ActionView Action = 1 << iota
	ActionCreate
	ActionEdit
	ActionDelete
	ActionApprove
	ActionExport

	ActionAll = ActionView | ActionCreate | ActionEdit | ActionDelete | ActionApprove | ActionExport
)

var actionNames = []struct {
	action Action
	name   string
}{
	{ActionView, "view"},
	{ActionCreate, "create"},
	{ActionEdit, "edit"},
	{ActionDelete, "delete"},
	{ActionApprove, "approve"},
	{ActionExport, "export"},
}

// ParseAction converts an action name into its bit.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" {
		return ActionAll, nil
	}
	for _, a := range actionNames {
		if a.name == name {
			return a.action, nil
		}
	}
	return 0, fmt.Errorf("rbac: unknown action %q", name)
}

// Names returns the action names set in the mask.
func (a Action) Names() []string {
	var out []string
	for _, n := range actionNames {
		if a&n.action != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// PermissionSet maps a module to its granted action mask.
type PermissionSet map[Module]Action

// Allows reports whether every bit of action is granted on module.
func (p PermissionSet) Allows(module Module, action Action) bool {
	return action != 0 && p[module]&action == action
}

// Merge ORs other into p.
func (p PermissionSet) Merge(other PermissionSet) {
	for m, a := range other {
		p[m] |= a
	}
}

// FromNames builds a set from module -> action names, rejecting unknown
// modules and actions.
func FromNames(in map[string][]string) (PermissionSet, error) {
	known := make(map[Module]struct{}, len(Modules))
	for _, m := range Modules {
		known[m] = struct{}{}
	}
	set := make(PermissionSet, len(in))
	for rawModule, actions := range in {
		module := Module(strings.ToLower(strings.TrimSpace(rawModule)))
		if _, ok := known[module]; !ok {
			return nil, fmt.Errorf("rbac: unknown module %q", rawModule)
		}
		for _, name := range actions {
			action, err := ParseAction(name)
			if err != nil {
				return nil, err
			}
			set[module] |= action
		}
	}
	return set, nil
}

// Names renders the set as module -> sorted action names.
func (p PermissionSet) Names() map[string][]string {
	out := make(map[string][]string, len(p))
	for m, a := range p {
		if a == 0 {
			continue
		}
		names := a.Names()
		sort.Strings(names)
		out[string(m)] = names
	}
	return out
}
