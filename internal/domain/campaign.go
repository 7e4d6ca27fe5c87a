package domain

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignSending},
	CampaignScheduled: {CampaignSending},
	CampaignSending:   {CampaignSent, CampaignFailed, CampaignCancelled},
}

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a campaign may move from s to next.
// Campaigns only move forward and always pass through sending before a
// terminal state.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Dispatchable reports whether a dispatch run may start from s.
func (s CampaignStatus) Dispatchable() bool {
	return s.CanTransition(CampaignSending)
}

// IsTerminal reports whether s is a final state.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignSent || s == CampaignFailed || s == CampaignCancelled
}

// Editable reports whether collaborators may still edit or delete the campaign.
func (s CampaignStatus) Editable() bool {
	return s == CampaignDraft || s == CampaignScheduled
}

// Campaign is a single email broadcast definition.
type Campaign struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Subject     string         `json:"subject"`
	Content     string         `json:"content"`
	TemplateID  *string        `json:"template_id,omitempty"`
	Status      CampaignStatus `json:"status"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Template is reusable content referenced by campaigns.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolveContent returns the subject and body a campaign sends. Template
// content wins when the campaign references a template with a non-empty
// body; a template without a subject falls back to the campaign subject.
// ok is false when neither source yields a body.
func ResolveContent(c *Campaign, tmpl *Template) (subject, content string, ok bool) {
	subject = c.Subject
	if tmpl != nil && tmpl.Content != "" {
		if tmpl.Subject != "" {
			subject = tmpl.Subject
		}
		return subject, tmpl.Content, true
	}
	if c.Content != "" {
		return subject, c.Content, true
	}
	return "", "", false
}
