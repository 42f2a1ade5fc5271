package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Region codes a carnival can be hosted in.
const (
	StateNSW = "NSW"
	StateQLD = "QLD"
	StateVIC = "VIC"
	StateWA  = "WA"
	StateSA  = "SA"
	StateTAS = "TAS"
	StateNT  = "NT"
	StateACT = "ACT"
)

var validStates = map[string]struct{}{
	StateNSW: {}, StateQLD: {}, StateVIC: {}, StateWA: {},
	StateSA: {}, StateTAS: {}, StateNT: {}, StateACT: {},
}

func IsValidState(state string) bool {
	_, ok := validStates[strings.ToUpper(strings.TrimSpace(state))]
	return ok
}

// Carnival source origins.
const (
	SourceManual         = "manual"
	sourceExternalPrefix = "external:"
)

// ExternalOrigin builds the sourceOrigin value for a named external source.
func ExternalOrigin(sourceName string) string {
	return sourceExternalPrefix + sourceName
}

// IsExternalOrigin reports whether origin refers to an external source and,
// if so, which one.
func IsExternalOrigin(origin string) (string, bool) {
	if strings.HasPrefix(origin, sourceExternalPrefix) {
		return origin[len(sourceExternalPrefix):], true
	}
	return "", false
}

type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Carnival is a scheduled competition day, either entered by a delegate or
// imported from an external source.
type Carnival struct {
	ID                 uuid.UUID   `json:"id"`
	Title              string      `json:"title"`
	Date               time.Time   `json:"date"`
	EndDate            *time.Time  `json:"end_date,omitempty"`
	State              string      `json:"state"`
	LocationAddress    string      `json:"location_address"`
	Contact            ContactInfo `json:"contact"`
	ScheduleDetails    string      `json:"schedule_details,omitempty"`
	RegistrationLink   string      `json:"registration_link,omitempty"`
	FeesDescription    string      `json:"fees_description,omitempty"`
	SourceOrigin       string      `json:"source_origin"`
	ExternalKey        string      `json:"external_key,omitempty"`
	ContentHash        string      `json:"content_hash,omitempty"`
	OwnerUserID        *uuid.UUID  `json:"owner_user_id,omitempty"`
	ClaimedAt          *time.Time  `json:"claimed_at,omitempty"`
	IsActive           bool        `json:"is_active"`
	LastExternalSyncAt *time.Time  `json:"last_external_sync_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// RawEvent is one record as the source adapter received it. A record the
// adapter could not parse carries ParseError instead of fields.
type RawEvent struct {
	SourceID        string            `json:"source_id,omitempty"`
	Title           string            `json:"title"`
	Date            string            `json:"date"`
	EndDate         string            `json:"end_date,omitempty"`
	State           string            `json:"state"`
	LocationAddress string            `json:"location_address"`
	ContactName     string            `json:"contact_name,omitempty"`
	ContactEmail    string            `json:"contact_email,omitempty"`
	ContactPhone    string            `json:"contact_phone,omitempty"`
	Schedule        string            `json:"schedule,omitempty"`
	RegistrationURL string            `json:"registration_url,omitempty"`
	Fees            string            `json:"fees,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
	ParseError      error             `json:"-"`
}

// CandidateEvent is the normalizer's canonical form of a RawEvent.
type CandidateEvent struct {
	ExternalKey      string
	Title            string
	Date             time.Time
	EndDate          *time.Time
	State            string
	LocationAddress  string
	Contact          ContactInfo
	ScheduleDetails  string
	RegistrationLink string
	FeesDescription  string
	ContentHash      string
}

// Sync log statuses.
const (
	SyncStatusStarted   = "started"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

type SyncLog struct {
	ID              uuid.UUID              `json:"id"`
	SyncType        string                 `json:"sync_type"`
	Status          string                 `json:"status"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	EventsProcessed int                    `json:"events_processed"`
	EventsCreated   int                    `json:"events_created"`
	EventsUpdated   int                    `json:"events_updated"`
	EventsRetired   int                    `json:"events_retired"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// SyncOutcome is the counter set one reconciliation run produces.
type SyncOutcome struct {
	EventsProcessed int      `json:"events_processed"`
	EventsCreated   int      `json:"events_created"`
	EventsUpdated   int      `json:"events_updated"`
	EventsRetired   int      `json:"events_retired"`
	Rejected        int      `json:"rejected,omitempty"`
	Duplicates      []string `json:"duplicates,omitempty"`
	Conflicts       []string `json:"conflicts,omitempty"`
	OwnedSurvivors  []string `json:"owned_survivors,omitempty"`
}

// MetadataMap renders the non-counter outcome detail for SyncLog.Metadata.
func (o SyncOutcome) MetadataMap() map[string]interface{} {
	meta := map[string]interface{}{}
	if o.Rejected > 0 {
		meta["rejected"] = o.Rejected
	}
	if len(o.Duplicates) > 0 {
		meta["duplicates"] = o.Duplicates
	}
	if len(o.Conflicts) > 0 {
		meta["conflicts"] = o.Conflicts
	}
	if len(o.OwnedSurvivors) > 0 {
		meta["ownedSurvivors"] = o.OwnedSurvivors
	}
	return meta
}

type SyncStats struct {
	SyncType             string     `json:"sync_type"`
	TotalSyncs           int        `json:"total_syncs"`
	SuccessfulSyncs      int        `json:"successful_syncs"`
	FailedSyncs          int        `json:"failed_syncs"`
	TotalEventsProcessed int        `json:"total_events_processed"`
	TotalEventsCreated   int        `json:"total_events_created"`
	TotalEventsUpdated   int        `json:"total_events_updated"`
	LastSuccessfulAt     *time.Time `json:"last_successful_at,omitempty"`
	LastFailedAt         *time.Time `json:"last_failed_at,omitempty"`
}

// User is a club delegate. Read-only from this subsystem's point of view.
type User struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     string     `json:"role"`
	ClubID   *uuid.UUID `json:"club_id,omitempty"`
	IsActive bool       `json:"is_active"`
}

const RoleAdmin = "admin"

type Club struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	State    string    `json:"state"`
	IsActive bool      `json:"is_active"`
}

type ClaimResult struct {
	Carnival Carnival  `json:"carnival"`
	UserID   uuid.UUID `json:"user_id"`
	ClubName string    `json:"club_name"`
}

type AdminAssignRequest struct {
	UserID *uuid.UUID `json:"user_id"`
}
