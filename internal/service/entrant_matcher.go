package service

import (
	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
)

// FindZoneID 校验明细属于同一收费区并返回该收费区
func FindZoneID(entries []models.VehicleEntrantPayment) (uuid.UUID, error) {
	if len(entries) == 0 {
		return uuid.Nil, ErrInconsistentZone
	}
	zoneID := entries[0].CleanZoneID
	if zoneID == uuid.Nil {
		return uuid.Nil, ErrInconsistentZone
	}
	for _, entry := range entries[1:] {
		if entry.CleanZoneID != zoneID {
			return uuid.Nil, ErrInconsistentZone
		}
	}
	return zoneID, nil
}
