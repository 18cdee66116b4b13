package model

import (
	"time"

	"gorm.io/datatypes"
)

// Exception is a failure captured from a worker loop, persisted for
// auditing and debugging.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "autotrader"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "buy-processing"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "ProcessPending"

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// debug | info | warn | error | fatal
	Level string `gorm:"size:20;index" json:"level"`

	Context datatypes.JSON `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
