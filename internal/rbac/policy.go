package rbac

import (
	"sort"
	"strings"

	"github.com/meridian-hms/meridian/internal/shared"
)

// Policy maps actor roles to permissions. It is the single capability check
// consulted by the pharmacy and finance workflows.
type Policy struct {
	grants map[string]map[string]struct{}
}

// NewPolicy builds a policy from role -> permissions.
func NewPolicy(grants map[string][]string) *Policy {
	p := &Policy{grants: make(map[string]map[string]struct{}, len(grants))}
	for role, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, perm := range normalizePermissions(perms) {
			set[perm] = struct{}{}
		}
		p.grants[strings.ToLower(strings.TrimSpace(role))] = set
	}
	return p
}

// DefaultPolicy returns the role grants used by the hospital.
func DefaultPolicy() *Policy {
	all := append(append(shared.PharmacyScopes(), shared.FinanceScopes()...), shared.AuditScopes()...)
	return NewPolicy(map[string][]string{
		shared.RoleAdmin: all,
		shared.RolePharmacist: {
			shared.PermMedicinesView,
			shared.PermMedicinesEdit,
			shared.PermStockRecord,
			shared.PermStockIntake,
			shared.PermPrescriptionDispense,
			shared.PermPrescriptionManage,
			shared.PermFinanceInvoiceView,
			shared.PermFinanceInvoiceEdit,
		},
		shared.RoleFinance: {
			shared.PermMedicinesView,
			shared.PermFinanceInvoiceView,
			shared.PermFinanceInvoiceEdit,
			shared.PermFinanceInvoiceVoid,
			shared.PermFinancePayment,
			shared.PermFinanceExpense,
			shared.PermFinanceReportView,
			shared.PermAuditView,
		},
		shared.RoleDoctor: {
			shared.PermMedicinesView,
			shared.PermPrescriptionManage,
			shared.PermFinanceInvoiceView,
		},
	})
}

// Permissions lists the permissions granted to role, sorted.
func (p *Policy) Permissions(role string) []string {
	if p == nil {
		return nil
	}
	set := p.grants[strings.ToLower(strings.TrimSpace(role))]
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// Allowed reports whether actor holds perm.
func (p *Policy) Allowed(actor shared.Actor, perm string) bool {
	if p == nil || actor.IsZero() {
		return false
	}
	_, ok := p.grants[strings.ToLower(actor.Role)][strings.ToLower(perm)]
	return ok
}

// Require returns shared.ErrForbidden unless actor holds perm.
func (p *Policy) Require(actor shared.Actor, perm string) error {
	if p.Allowed(actor, perm) {
		return nil
	}
	return shared.Wrap(shared.ErrForbidden, "%s requires %s", roleLabel(actor), perm)
}

// CanDispense reports whether actor may release medicine against a prescription.
func (p *Policy) CanDispense(actor shared.Actor) bool {
	return p.Allowed(actor, shared.PermPrescriptionDispense)
}

// CanManagePrescription reports whether actor may complete, cancel or reinitiate prescriptions.
func (p *Policy) CanManagePrescription(actor shared.Actor) bool {
	return p.Allowed(actor, shared.PermPrescriptionManage)
}

// CanRecordStock reports whether actor may write ledger entries.
func (p *Policy) CanRecordStock(actor shared.Actor) bool {
	return p.Allowed(actor, shared.PermStockRecord)
}

// CanManageInvoices reports whether actor may create and edit invoices.
func (p *Policy) CanManageInvoices(actor shared.Actor) bool {
	return p.Allowed(actor, shared.PermFinanceInvoiceEdit)
}

// CanVoidInvoice reports whether actor may void invoices.
func (p *Policy) CanVoidInvoice(actor shared.Actor) bool {
	return p.Allowed(actor, shared.PermFinanceInvoiceVoid)
}

// CanRecordPayment reports whether actor may record payments.
func (p *Policy) CanRecordPayment(actor shared.Actor) bool {
	return p.Allowed(actor, shared.PermFinancePayment)
}

// CanViewFinance reports whether actor may read the financial position.
func (p *Policy) CanViewFinance(actor shared.Actor) bool {
	return p.Allowed(actor, shared.PermFinanceReportView)
}

func roleLabel(actor shared.Actor) string {
	if actor.Role == "" {
		return "anonymous"
	}
	return "role " + actor.Role
}
