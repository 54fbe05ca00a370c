package dispense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-hms/meridian/internal/shared"
)

// Status is the prescription lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDispensed Status = "DISPENSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Prescription is issued by a doctor and released by the pharmacy.
type Prescription struct {
	ID           int64     `json:"id"`
	PatientID    int64     `json:"patient_id"`
	DoctorID     *int64    `json:"doctor_id,omitempty"`
	Medication   string    `json:"medication"`
	Dosage       string    `json:"dosage"`
	Duration     string    `json:"duration"`
	Instructions string    `json:"instructions,omitempty"`
	Status       Status    `json:"status"`
	PharmacistID *int64    `json:"pharmacist_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Record is the single dispense of a prescription.
type Record struct {
	ID                int64           `json:"id"`
	PrescriptionID    int64           `json:"prescription_id"`
	MedicineID        int64           `json:"medicine_id"`
	Quantity          int64           `json:"quantity"`
	AmountCharged     decimal.Decimal `json:"amount_charged"`
	Discount          decimal.Decimal `json:"discount"`
	AdditionalCharges decimal.Decimal `json:"additional_charges"`
	AdditionalNote    string          `json:"additional_note,omitempty"`
	FinalAmount       decimal.Decimal `json:"final_amount"`
	PharmacistID      int64           `json:"pharmacist_id"`
	LedgerEntryID     int64           `json:"ledger_entry_id"`
	DispensedAt       time.Time       `json:"dispensed_at"`
}

// Input requests a dispense. Discount and AdditionalCharges are decimal text;
// empty means zero. Quantity is only read for medicines sold per unit.
type Input struct {
	PrescriptionID    int64
	MedicineID        int64
	Quantity          *int64
	Discount          string
	AdditionalCharges string
	AdditionalNote    string
	Actor             shared.Actor
}

// CreateInput registers a prescription issued by a doctor.
type CreateInput struct {
	PatientID    int64        `json:"patient_id" validate:"required,gt=0"`
	Medication   string       `json:"medication" validate:"required,max=200"`
	Dosage       string       `json:"dosage" validate:"required,max=100"`
	Duration     string       `json:"duration" validate:"required,max=100"`
	Instructions string       `json:"instructions" validate:"max=2000"`
	Actor        shared.Actor `json:"-"`
}

// transitions lists the allowed state changes outside of dispensing.
var transitions = map[Status]Status{
	StatusCompleted: StatusDispensed,
	StatusCancelled: StatusPending,
	StatusPending:   StatusCancelled,
}
