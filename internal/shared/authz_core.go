package shared

// Pharmacy permissions.
const (
	PermMedicinesView = "pharmacy.medicines.view"
	PermMedicinesEdit = "pharmacy.medicines.edit"

	PermStockRecord = "pharmacy.stock.record"
	PermStockIntake = "pharmacy.stock.intake"

	PermPrescriptionDispense = "pharmacy.prescription.dispense"
	PermPrescriptionManage   = "pharmacy.prescription.manage"
)

// PharmacyScopes lists all permissions related to the pharmacy module.
func PharmacyScopes() []string {
	return []string{
		PermMedicinesView,
		PermMedicinesEdit,
		PermStockRecord,
		PermStockIntake,
		PermPrescriptionDispense,
		PermPrescriptionManage,
	}
}
