package models

import (
	"fmt"
	"time"
)

// RecordActive marks the record new visits are filed under.
const RecordActive = "Active"

type MedicalRecord struct {
	ID           int64  `json:"id"`
	PatientID    int64  `json:"patient_id"`
	RecordNumber string `json:"record_number"`
	IssuedDate   string `json:"issued_date"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
	CreatedBy    int64  `json:"created_by"`
}

// RecordNumber formats MR-<unix timestamp>-<patientId>.
func RecordNumber(issued time.Time, patientID int64) string {
	return fmt.Sprintf("MR-%d-%d", issued.Unix(), patientID)
}
