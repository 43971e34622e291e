package objects

import (
	"errors"
	"fmt"
	"time"

	"conductor/app/db/models"
	"conductor/pkg/contextx"
	"conductor/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NamedLock struct {
	*models.NamedLock
	ContextObject
	PersistentObject
}

func (l *NamedLock) Save(ctx *contextx.Context) error {
	l.UpdatedAt = time.Now().UTC()
	if !l.IsCreated() {
		l.CreatedAt = l.UpdatedAt
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if err := l.GetDB(ctx).Create(l.NamedLock).Error; err != nil {
			return err
		}
	} else if err := l.GetDB(ctx).Save(l.NamedLock).Error; err != nil {
		return err
	}
	l.SetContext(ctx)
	l.SetCreated()
	return nil
}

func (l *NamedLock) Delete(ctx *contextx.Context) error {
	if !l.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", l.ID)
	}
	return l.GetDB(ctx).Delete(&models.NamedLock{}, "id = ?", l.ID).Error
}

func NewNamedLock() *NamedLock {
	return &NamedLock{NamedLock: &models.NamedLock{}}
}

// WithNamedLock runs callback while holding the named lock row. Acquiring a
// lock that is already held fails on the unique name index.
func WithNamedLock(ctx *contextx.Context, name string, callback func() error) error {
	locker := NewNamedLock()
	locker.Name = name
	err := locker.Save(ctx)
	if err != nil {
		return err
	}

	err = callback()
	delErr := locker.Delete(ctx)
	if delErr != nil {
		log.Warnf(ctx, "clear lock %s failed, error: %s", name, delErr.Error())
	}
	return err
}

// ReleaseStaleLock drops the named lock when it was last touched before
// cutoff, which happens when its holder died before releasing it.
func ReleaseStaleLock(ctx *contextx.Context, name string, cutoff time.Time) (bool, error) {
	var held models.NamedLock
	err := GetDB(ctx).Where("name = ?", name).Take(&held).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !held.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	if err := GetDB(ctx).Delete(&models.NamedLock{}, "id = ?", held.ID).Error; err != nil {
		return false, err
	}
	log.Warnf(ctx, "released stale lock %s held since %s", name, held.UpdatedAt.Format(time.RFC3339))
	return true, nil
}
