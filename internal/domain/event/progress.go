package event

import (
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/google/uuid"
)

// Progress is emitted by the scanner after every completed batch.
type Progress struct {
	ScanID       uuid.UUID
	Results      []model.CollectionRef
	Status       string
	BatchIndex   int
	TotalBatches int
}
