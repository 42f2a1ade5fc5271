package carnival

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mastersleague/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("carnival not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type carnivalModel struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	Title              string         `gorm:"column:title"`
	Date               time.Time      `gorm:"column:date;index"`
	EndDate            *time.Time     `gorm:"column:end_date"`
	State              string         `gorm:"column:state;index"`
	LocationAddress    string         `gorm:"column:location_address"`
	ContactName        string         `gorm:"column:contact_name"`
	ContactEmail       string         `gorm:"column:contact_email"`
	ContactPhone       string         `gorm:"column:contact_phone"`
	ScheduleDetails    string         `gorm:"column:schedule_details"`
	RegistrationLink   string         `gorm:"column:registration_link"`
	FeesDescription    string         `gorm:"column:fees_description"`
	SourceOrigin       string         `gorm:"column:source_origin;uniqueIndex:idx_carnival_source_key,where:external_key IS NOT NULL"`
	ExternalKey        *string        `gorm:"column:external_key;uniqueIndex:idx_carnival_source_key,where:external_key IS NOT NULL"`
	ContentHash        string         `gorm:"column:content_hash"`
	OwnerUserID        *uuid.UUID     `gorm:"type:uuid;column:owner_user_id;index"`
	ClaimedAt          *time.Time     `gorm:"column:claimed_at"`
	IsActive           bool           `gorm:"column:is_active;index"`
	LastExternalSyncAt *time.Time     `gorm:"column:last_external_sync_at"`
	OwnershipAudit     datatypes.JSON `gorm:"column:ownership_audit"`
	CreatedAt          time.Time      `gorm:"column:created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at"`
}

func (carnivalModel) TableName() string { return "carnivals" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&carnivalModel{})
}

func (r *Repository) ListActiveExternal(ctx context.Context, sourceOrigin string) ([]models.Carnival, error) {
	var rows []carnivalModel
	err := r.db.WithContext(ctx).
		Where("source_origin = ? AND is_active = ?", sourceOrigin, true).
		Order("external_key").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	carnivals := make([]models.Carnival, 0, len(rows))
	for i := range rows {
		carnivals = append(carnivals, toDomain(&rows[i]))
	}
	return carnivals, nil
}

func (r *Repository) CreateFromCandidate(ctx context.Context, sourceOrigin string, c models.CandidateEvent, now time.Time) (models.Carnival, error) {
	key := c.ExternalKey
	row := &carnivalModel{
		ID:                 uuid.New(),
		Title:              c.Title,
		Date:               c.Date,
		EndDate:            c.EndDate,
		State:              c.State,
		LocationAddress:    c.LocationAddress,
		ContactName:        c.Contact.Name,
		ContactEmail:       c.Contact.Email,
		ContactPhone:       c.Contact.Phone,
		ScheduleDetails:    c.ScheduleDetails,
		RegistrationLink:   c.RegistrationLink,
		FeesDescription:    c.FeesDescription,
		SourceOrigin:       sourceOrigin,
		ExternalKey:        &key,
		ContentHash:        c.ContentHash,
		IsActive:           true,
		LastExternalSyncAt: &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return models.Carnival{}, err
	}
	return toDomain(row), nil
}

// UpdateFromCandidate rewrites the content fields of an imported carnival.
// Identity, ownership and created_at are never touched here.
func (r *Repository) UpdateFromCandidate(ctx context.Context, id uuid.UUID, c models.CandidateEvent, now time.Time) error {
	updates := map[string]interface{}{
		"title":                 c.Title,
		"date":                  c.Date,
		"end_date":              c.EndDate,
		"state":                 c.State,
		"location_address":      c.LocationAddress,
		"contact_name":          c.Contact.Name,
		"contact_email":         c.Contact.Email,
		"contact_phone":         c.Contact.Phone,
		"schedule_details":      c.ScheduleDetails,
		"registration_link":     c.RegistrationLink,
		"fees_description":      c.FeesDescription,
		"content_hash":          c.ContentHash,
		"last_external_sync_at": now,
		"updated_at":            now,
	}
	result := r.db.WithContext(ctx).Model(&carnivalModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) TouchExternalSync(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&carnivalModel{}).Where("id = ?", id).
		Update("last_external_sync_at", now).Error
}

// RetireAll deactivates the given carnivals in one transaction. The owner
// guard is repeated here so a claim racing the retire pass wins.
func (r *Repository) RetireAll(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&carnivalModel{}).
			Where("id IN ? AND owner_user_id IS NULL", ids).
			Updates(map[string]interface{}{
				"is_active":  false,
				"updated_at": now,
			}).Error
	})
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (models.Carnival, error) {
	var row carnivalModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Carnival{}, ErrNotFound
	}
	if err != nil {
		return models.Carnival{}, err
	}
	return toDomain(&row), nil
}

// Claim sets the owner iff the carnival is currently unclaimed. Returns
// false when another delegate won the race.
func (r *Repository) Claim(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&carnivalModel{}).
		Where("id = ? AND owner_user_id IS NULL", id).
		Updates(map[string]interface{}{
			"owner_user_id": userID,
			"claimed_at":    now,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Release clears ownership iff userID is the current owner.
func (r *Repository) Release(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&carnivalModel{}).
		Where("id = ? AND owner_user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"owner_user_id": nil,
			"claimed_at":    nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type auditEntry struct {
	Action  string     `json:"action"`
	AdminID uuid.UUID  `json:"admin_id"`
	Target  *uuid.UUID `json:"target,omitempty"`
	At      time.Time  `json:"at"`
}

// AssignOwner sets or clears the owner regardless of the current holder and
// appends the action to the carnival's ownership audit trail.
func (r *Repository) AssignOwner(ctx context.Context, id uuid.UUID, target *uuid.UUID, adminID uuid.UUID, now time.Time) (models.Carnival, error) {
	var row carnivalModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var audit []auditEntry
		if len(row.OwnershipAudit) > 0 {
			_ = json.Unmarshal(row.OwnershipAudit, &audit)
		}
		action := "assigned"
		if target == nil {
			action = "cleared"
		}
		audit = append(audit, auditEntry{Action: action, AdminID: adminID, Target: target, At: now})
		auditJSON, err := json.Marshal(audit)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"owner_user_id":   target,
			"updated_at":      now,
			"ownership_audit": datatypes.JSON(auditJSON),
		}
		if target == nil {
			updates["claimed_at"] = nil
		} else {
			updates["claimed_at"] = now
		}
		if err := tx.Model(&carnivalModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&row, "id = ?", id).Error
	})
	if err != nil {
		return models.Carnival{}, err
	}
	return toDomain(&row), nil
}

func toDomain(row *carnivalModel) models.Carnival {
	carnival := models.Carnival{
		ID:              row.ID,
		Title:           row.Title,
		Date:            row.Date,
		EndDate:         row.EndDate,
		State:           row.State,
		LocationAddress: row.LocationAddress,
		Contact: models.ContactInfo{
			Name:  row.ContactName,
			Email: row.ContactEmail,
			Phone: row.ContactPhone,
		},
		ScheduleDetails:    row.ScheduleDetails,
		RegistrationLink:   row.RegistrationLink,
		FeesDescription:    row.FeesDescription,
		SourceOrigin:       row.SourceOrigin,
		ContentHash:        row.ContentHash,
		OwnerUserID:        row.OwnerUserID,
		ClaimedAt:          row.ClaimedAt,
		IsActive:           row.IsActive,
		LastExternalSyncAt: row.LastExternalSyncAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.ExternalKey != nil {
		carnival.ExternalKey = *row.ExternalKey
	}
	return carnival
}
