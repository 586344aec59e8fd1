// Package medrecord resolves the medical record a visit is filed under.
package medrecord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
)

// ResolveActive returns the patient's Active record, creating one numbered
// MR-<unix ts>-<patientId> when there is none. created reports which happened.
// It must run inside the caller's transaction; the patient's row lock keeps
// concurrent visits from creating a second Active record.
func ResolveActive(ctx context.Context, q store.Queries, patientID, createdBy int64, now time.Time, loc *time.Location) (rec *models.MedicalRecord, created bool, err error) {
	if err := q.LockPatient(ctx, patientID); err != nil {
		return nil, false, fmt.Errorf("lock patient %d: %w", patientID, err)
	}
	rec, err = q.ActiveMedicalRecord(ctx, patientID)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("look up active medical record: %w", err)
	}

	rec = &models.MedicalRecord{
		PatientID:    patientID,
		RecordNumber: models.RecordNumber(now, patientID),
		IssuedDate:   models.DateIn(now, loc),
		Status:       models.RecordActive,
		CreatedBy:    createdBy,
	}
	if err := q.CreateMedicalRecord(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("create medical record: %w", err)
	}
	return rec, true, nil
}
