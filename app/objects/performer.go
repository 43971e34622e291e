package objects

import (
	"conductor/app/db/models"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

type Performer struct {
	*models.Performer
	ContextObject
	PersistentObject
}

func (p *Performer) Save(ctx *contextx.Context) error {
	if !p.IsCreated() {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := p.GetDB(ctx).Create(p.Performer).Error; err != nil {
			return err
		}
	} else if err := p.GetDB(ctx).Save(p.Performer).Error; err != nil {
		return err
	}
	p.SetContext(ctx)
	p.SetCreated()
	return nil
}

func (p *Performer) Update(ctx *contextx.Context, fields ...string) error {
	return updateFields(p.GetDB(ctx), p.Performer, fields)
}

// Principal is the user, group or guest id the performer stands for.
func (p *Performer) Principal() string {
	if p.Type == models.PerformerGroup {
		return p.GroupID
	}
	return p.UserID
}

func NewPerformer(taskID, kind, id string) *Performer {
	p := &Performer{Performer: &models.Performer{TaskID: taskID, Type: kind}}
	if kind == models.PerformerGroup {
		p.GroupID = id
	} else {
		p.UserID = id
	}
	return p
}

func NewPerformerFromDB(ctx *contextx.Context, m *models.Performer) *Performer {
	p := &Performer{Performer: m}
	p.SetContext(ctx)
	p.SetCreated()
	return p
}

// QueryPerformersByTask includes directly deleted performers, callers filter.
func QueryPerformersByTask(ctx *contextx.Context, taskID string) ([]*Performer, error) {
	var ms []*models.Performer
	if err := GetDB(ctx).Where("task_id = ?", taskID).Order("type, user_id, group_id").Find(&ms).Error; err != nil {
		return nil, err
	}
	performers := make([]*Performer, 0, len(ms))
	for _, m := range ms {
		performers = append(performers, NewPerformerFromDB(ctx, m))
	}
	return performers, nil
}

// QueryGroupMembers maps each of the given groups to its member user ids.
func QueryGroupMembers(ctx *contextx.Context, groupIDs ...string) (map[string][]string, error) {
	members := map[string][]string{}
	if len(groupIDs) == 0 {
		return members, nil
	}
	var ms []*models.GroupMember
	if err := GetDB(ctx).Where("group_id IN ?", groupIDs).Order("group_id, user_id").Find(&ms).Error; err != nil {
		return nil, err
	}
	for _, m := range ms {
		members[m.GroupID] = append(members[m.GroupID], m.UserID)
	}
	return members, nil
}

func AddGroupMember(ctx *contextx.Context, groupID, userID string) error {
	return GetDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GroupMember{GroupID: groupID, UserID: userID}).Error
}
