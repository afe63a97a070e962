package repository

import (
	"errors"
	"fmt"

	"github.com/yz4230/selfupdate/internal/entity"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = gorm.ErrRecordNotFound
	ErrDuplicate = gorm.ErrDuplicatedKey
)

// MapError translates storage errors into entity errors.
func MapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", entity.ErrNotFound, err)
	}
	return err
}
