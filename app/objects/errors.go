package objects

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrVersionConflict means another writer bumped the row version first.
	ErrVersionConflict = errors.New("row version changed concurrently")
	ErrInvalidTemplate = errors.New("invalid template")
)

func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
