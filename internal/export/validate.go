package export

import (
	"fmt"

	"github.com/pavelanni/reflector/internal/model"
	"github.com/pavelanni/reflector/internal/validator"
)

// Validate reports whether rec carries every field the serializers need.
func Validate(rec *model.ExportRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if err := validator.Struct(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
