package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mastersleague/platform/pkg/common/models"
)

// How far from now an event date may lie before the record is rejected.
const dateHorizonYears = 10

var rawDateLayouts = []string{"2006-01-02", time.RFC3339}

// Normalizer converts raw source records into canonical candidate events
// with a stable external key and a content hash.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Normalizer{now: now}
}

func (n *Normalizer) Normalize(raw models.RawEvent) (models.CandidateEvent, error) {
	if raw.ParseError != nil {
		return models.CandidateEvent{}, rejected("unparseable record: %v", raw.ParseError)
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return models.CandidateEvent{}, rejected("missing title")
	}

	dateStr := strings.TrimSpace(raw.Date)
	if dateStr == "" {
		return models.CandidateEvent{}, rejected("missing date")
	}
	date, err := parseRawDate(dateStr)
	if err != nil {
		return models.CandidateEvent{}, rejected("invalid date %q", dateStr)
	}

	state := strings.ToUpper(strings.TrimSpace(raw.State))
	if state == "" {
		return models.CandidateEvent{}, rejected("missing state")
	}
	if !models.IsValidState(state) {
		return models.CandidateEvent{}, rejected("unknown state %q", state)
	}

	now := n.now()
	if date.Before(now.AddDate(-dateHorizonYears, 0, 0)) {
		return models.CandidateEvent{}, rejected("date %s more than %d years in the past", dateStr, dateHorizonYears)
	}
	if date.After(now.AddDate(dateHorizonYears, 0, 0)) {
		return models.CandidateEvent{}, rejected("date %s more than %d years in the future", dateStr, dateHorizonYears)
	}

	candidate := models.CandidateEvent{
		Title:           title,
		Date:            date,
		State:           state,
		LocationAddress: strings.TrimSpace(raw.LocationAddress),
		Contact: models.ContactInfo{
			Name:  strings.TrimSpace(raw.ContactName),
			Email: strings.TrimSpace(raw.ContactEmail),
			Phone: strings.TrimSpace(raw.ContactPhone),
		},
		ScheduleDetails:  strings.TrimSpace(raw.Schedule),
		RegistrationLink: strings.TrimSpace(raw.RegistrationURL),
		FeesDescription:  strings.TrimSpace(raw.Fees),
	}

	if endStr := strings.TrimSpace(raw.EndDate); endStr != "" {
		if end, err := parseRawDate(endStr); err == nil && !end.Before(date) {
			candidate.EndDate = &end
		}
	}

	candidate.ExternalKey = externalKey(raw.SourceID, candidate)
	candidate.ContentHash = contentHash(candidate)

	return candidate, nil
}

// externalKey prefers the identity the source assigns; lacking one it derives
// a key from the fields that identify an event across runs.
func externalKey(sourceID string, c models.CandidateEvent) string {
	if id := strings.TrimSpace(sourceID); id != "" {
		return id
	}
	derived := collapseWhitespace(strings.ToLower(strings.Join([]string{
		c.Title,
		c.Date.Format("2006-01-02"),
		c.State,
		c.LocationAddress,
	}, "|")))
	sum := sha256.Sum256([]byte(derived))
	return "derived:" + hex.EncodeToString(sum[:16])
}

// contentHash digests every canonical field. Whitespace was trimmed during
// normalization; case is preserved.
func contentHash(c models.CandidateEvent) string {
	endDate := ""
	if c.EndDate != nil {
		endDate = c.EndDate.Format("2006-01-02")
	}
	fields := []string{
		c.Title,
		c.Date.Format("2006-01-02"),
		endDate,
		c.State,
		c.LocationAddress,
		c.Contact.Name,
		c.Contact.Email,
		c.Contact.Phone,
		c.ScheduleDetails,
		c.RegistrationLink,
		c.FeesDescription,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func parseRawDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range rawDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
