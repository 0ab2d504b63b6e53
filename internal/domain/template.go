package domain

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
)

//go:generate mockgen -destination mocks/mock_template_service.go -package mocks github.com/mailrelay/pulsewire/internal/domain TemplateService
//go:generate mockgen -destination mocks/mock_template_repository.go -package mocks github.com/mailrelay/pulsewire/internal/domain TemplateRepository

type TemplateCategory string

const (
	TemplateCategoryMarketing     TemplateCategory = "marketing"
	TemplateCategoryTransactional TemplateCategory = "transactional"
	TemplateCategoryWelcome       TemplateCategory = "welcome"
	TemplateCategoryOptIn         TemplateCategory = "opt_in"
	TemplateCategoryUnsubscribe   TemplateCategory = "unsubscribe"
	TemplateCategoryBounce        TemplateCategory = "bounce"
	TemplateCategoryBlocklist     TemplateCategory = "blocklist"
	TemplateCategoryOther         TemplateCategory = "other"
)

func (t TemplateCategory) Validate() error {
	switch t {
	case TemplateCategoryMarketing, TemplateCategoryTransactional, TemplateCategoryWelcome, TemplateCategoryOptIn, TemplateCategoryUnsubscribe, TemplateCategoryBounce, TemplateCategoryBlocklist, TemplateCategoryOther:
		return nil
	}
	return fmt.Errorf("invalid template category: %s", t)
}

// maxTemplateVersions caps the number of versions retained per template id;
// the repository prunes the oldest version on insert once this cap is hit.
const maxTemplateVersions = 20

// Template is a versioned HTML email template: a subject line, an HTML
// body, and an optional plain-text body rendered through pkg/renderer.
type Template struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Version         int64          `json:"version"`
	Channel         string         `json:"channel"` // email for now
	Email           *EmailTemplate `json:"email"`
	Category        string         `json:"category"`
	TemplateMacroID *string        `json:"template_macro_id,omitempty"`
	TestData        MapOfAny       `json:"test_data,omitempty"`
	Settings        MapOfAny       `json:"settings,omitempty"` // Channel-specific 3rd-party settings
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
}

func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("invalid template: id is required")
	}
	if len(t.ID) > 32 {
		return fmt.Errorf("invalid template: id length must be between 1 and 32")
	}

	if t.Name == "" {
		return fmt.Errorf("invalid template: name is required")
	}
	if len(t.Name) > 32 {
		return fmt.Errorf("invalid template: name length must be between 1 and 32")
	}

	if t.Version <= 0 {
		return fmt.Errorf("invalid template: version must be positive")
	}

	if t.Channel == "" {
		return fmt.Errorf("invalid template: channel is required")
	}
	if len(t.Channel) > 20 {
		return fmt.Errorf("invalid template: channel length must be between 1 and 20")
	}

	if t.Category == "" {
		return fmt.Errorf("invalid template: category is required")
	}
	if len(t.Category) > 20 {
		return fmt.Errorf("invalid template: category length must be between 1 and 20")
	}

	if t.Email == nil {
		return fmt.Errorf("invalid template: email is required")
	}

	if t.TestData == nil {
		t.TestData = MapOfAny{}
	}

	if err := t.Email.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	return nil
}

type TemplateReference struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

func (t *TemplateReference) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("invalid template reference: id is required")
	}
	if len(t.ID) > 32 {
		return fmt.Errorf("invalid template reference: id length must be between 1 and 32")
	}

	if t.Version < 0 {
		return fmt.Errorf("invalid template reference: version must be zero or positive")
	}

	return nil
}

// Scan implements the sql.Scanner interface
func (t *TemplateReference) Scan(val interface{}) error {
	return scanJSON(val, t)
}

// Value implements the driver.Valuer interface
func (t TemplateReference) Value() (driver.Value, error) {
	return marshalJSON(t)
}

// EmailTemplate is the plain HTML+subject+text body of a Template. The
// visual drag-and-drop email designer this used to carry (an MJML
// component tree) is out of scope; templates are authored as raw HTML
// elsewhere and rendered at send time by pkg/renderer.
type EmailTemplate struct {
	SenderID       string  `json:"sender_id,omitempty"`
	ReplyTo        string  `json:"reply_to,omitempty"`
	Subject        string  `json:"subject"`
	SubjectPreview *string `json:"subject_preview,omitempty"`
	HTML           string  `json:"html"`
	Text           *string `json:"text,omitempty"`
}

func (e *EmailTemplate) Validate() error {
	if e.Subject == "" {
		return fmt.Errorf("invalid email template: subject is required")
	}
	if len(e.Subject) > 255 {
		return fmt.Errorf("invalid email template: subject length must be between 1 and 255")
	}
	if e.HTML == "" {
		return fmt.Errorf("invalid email template: html is required")
	}

	if e.ReplyTo != "" && !govalidator.IsEmail(e.ReplyTo) {
		return fmt.Errorf("invalid email template: reply_to is not a valid email")
	}
	if e.SubjectPreview != nil && len(*e.SubjectPreview) > 255 {
		return fmt.Errorf("invalid email template: subject_preview length must be between 1 and 255")
	}

	return nil
}

func (x *EmailTemplate) Scan(val interface{}) error {
	return scanJSON(val, x)
}

func (x EmailTemplate) Value() (driver.Value, error) {
	return marshalJSON(x)
}

// Request/Response types
type CreateTemplateRequest struct {
	WorkspaceID     string         `json:"workspace_id"`
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Channel         string         `json:"channel"`
	Email           *EmailTemplate `json:"email"`
	Category        string         `json:"category"`
	TemplateMacroID *string        `json:"template_macro_id,omitempty"`
	TestData        MapOfAny       `json:"test_data,omitempty"`
	Settings        MapOfAny       `json:"settings,omitempty"`
}

func (r *CreateTemplateRequest) Validate() (template *Template, workspaceID string, err error) {
	if r.WorkspaceID == "" {
		return nil, "", fmt.Errorf("invalid create template request: workspace_id is required")
	}
	if r.ID == "" {
		return nil, "", fmt.Errorf("invalid create template request: id is required")
	}
	if len(r.ID) > 32 {
		return nil, "", fmt.Errorf("invalid create template request: id length must be between 1 and 32")
	}

	if r.Name == "" {
		return nil, "", fmt.Errorf("invalid create template request: name is required")
	}
	if len(r.Name) > 32 {
		return nil, "", fmt.Errorf("invalid create template request: name length must be between 1 and 32")
	}

	if r.Channel == "" {
		return nil, "", fmt.Errorf("invalid create template request: channel is required")
	}
	if len(r.Channel) > 20 {
		return nil, "", fmt.Errorf("invalid create template request: channel length must be between 1 and 20")
	}

	if r.Category == "" {
		return nil, "", fmt.Errorf("invalid create template request: category is required")
	}
	if len(r.Category) > 20 {
		return nil, "", fmt.Errorf("invalid create template request: category length must be between 1 and 20")
	}

	if r.Email == nil {
		return nil, "", fmt.Errorf("invalid create template request: email is required")
	}

	if err := r.Email.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid create template request: %w", err)
	}

	return &Template{
		ID:              r.ID,
		Name:            r.Name,
		Version:         1, // Start with version 1 for new templates
		Channel:         r.Channel,
		Email:           r.Email,
		Category:        r.Category,
		TemplateMacroID: r.TemplateMacroID,
		TestData:        r.TestData,
		Settings:        r.Settings,
	}, r.WorkspaceID, nil
}

type GetTemplatesRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Category    string `json:"category,omitempty"`
}

func (r *GetTemplatesRequest) FromURLParams(queryParams url.Values) (err error) {
	r.WorkspaceID = queryParams.Get("workspace_id")
	r.Category = queryParams.Get("category")

	if r.WorkspaceID == "" {
		return fmt.Errorf("invalid get templates request: workspace_id is required")
	}
	if len(r.WorkspaceID) > 20 {
		return fmt.Errorf("invalid get templates request: workspace_id length must be between 1 and 20")
	}

	if r.Category != "" {
		if len(r.Category) > 20 {
			return fmt.Errorf("invalid get templates request: category length must be between 1 and 20")
		}
	}

	return nil
}

type GetTemplateRequest struct {
	WorkspaceID string `json:"workspace_id"`
	ID          string `json:"id"`
	Version     int64  `json:"version,omitempty"`
}

func (r *GetTemplateRequest) FromURLParams(queryParams url.Values) (err error) {
	r.WorkspaceID = queryParams.Get("workspace_id")
	r.ID = queryParams.Get("id")
	versionStr := queryParams.Get("version")

	if r.WorkspaceID == "" {
		return fmt.Errorf("invalid get template request: workspace_id is required")
	}

	if r.ID == "" {
		return fmt.Errorf("invalid get template request: id is required")
	}
	if len(r.ID) > 32 {
		return fmt.Errorf("invalid get template request: id length must be between 1 and 32")
	}

	if versionStr != "" {
		version, err := strconv.ParseInt(versionStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid get template request: version must be a valid integer")
		}
		r.Version = version
	}

	return nil
}

type UpdateTemplateRequest struct {
	WorkspaceID     string         `json:"workspace_id"`
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Channel         string         `json:"channel"`
	Email           *EmailTemplate `json:"email"`
	Category        string         `json:"category"`
	TemplateMacroID *string        `json:"template_macro_id,omitempty"`
	TestData        MapOfAny       `json:"test_data,omitempty"`
	Settings        MapOfAny       `json:"settings,omitempty"`
}

func (r *UpdateTemplateRequest) Validate() (template *Template, workspaceID string, err error) {
	if r.WorkspaceID == "" {
		return nil, "", fmt.Errorf("invalid update template request: workspace_id is required")
	}
	if r.ID == "" {
		return nil, "", fmt.Errorf("invalid update template request: id is required")
	}
	if len(r.ID) > 32 {
		return nil, "", fmt.Errorf("invalid update template request: id length must be between 1 and 32")
	}

	if r.Name == "" {
		return nil, "", fmt.Errorf("invalid update template request: name is required")
	}
	if len(r.Name) > 32 {
		return nil, "", fmt.Errorf("invalid update template request: name length must be between 1 and 32")
	}

	if r.Channel == "" {
		return nil, "", fmt.Errorf("invalid update template request: channel is required")
	}
	if len(r.Channel) > 20 {
		return nil, "", fmt.Errorf("invalid update template request: channel length must be between 1 and 20")
	}

	if r.Category == "" {
		return nil, "", fmt.Errorf("invalid update template request: category is required")
	}
	if len(r.Category) > 20 {
		return nil, "", fmt.Errorf("invalid update template request: category length must be between 1 and 20")
	}

	if r.Email == nil {
		return nil, "", fmt.Errorf("invalid update template request: email is required")
	}

	if err := r.Email.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid update template request: %w", err)
	}

	return &Template{
		ID:              r.ID,
		Name:            r.Name,
		Channel:         r.Channel,
		Email:           r.Email,
		Category:        r.Category,
		TemplateMacroID: r.TemplateMacroID,
		TestData:        r.TestData,
		Settings:        r.Settings,
	}, r.WorkspaceID, nil
}

type DeleteTemplateRequest struct {
	WorkspaceID string `json:"workspace_id"`
	ID          string `json:"id"`
}

func (r *DeleteTemplateRequest) Validate() (workspaceID string, id string, err error) {
	if r.WorkspaceID == "" {
		return "", "", fmt.Errorf("invalid delete template request: workspace_id is required")
	}

	if r.ID == "" {
		return "", "", fmt.Errorf("invalid delete template request: id is required")
	}
	if len(r.ID) > 32 {
		return "", "", fmt.Errorf("invalid delete template request: id length must be between 1 and 32")
	}

	return r.WorkspaceID, r.ID, nil
}

// RenderTemplateRequest asks pkg/renderer to render a template against a
// test-data context, returning the rendered subject/html/text without
// sending anything.
type RenderTemplateRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	TemplateID  string   `json:"template_id"`
	Version     int64    `json:"version,omitempty"`
	TestData    MapOfAny `json:"test_data,omitempty"`
}

func (r *RenderTemplateRequest) Validate() error {
	if r.WorkspaceID == "" {
		return fmt.Errorf("invalid render template request: workspace_id is required")
	}
	if r.TemplateID == "" {
		return fmt.Errorf("invalid render template request: template_id is required")
	}
	return nil
}

// RenderTemplateResponse is the rendered output of RenderTemplateRequest.
type RenderTemplateResponse struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// TemplateService provides operations for managing templates
type TemplateService interface {
	// CreateTemplate creates a new template
	CreateTemplate(ctx context.Context, workspaceID string, template *Template) error

	// GetTemplateByID retrieves a template by ID and optional version
	GetTemplateByID(ctx context.Context, workspaceID string, id string, version int64) (*Template, error)

	// GetTemplates retrieves all templates
	GetTemplates(ctx context.Context, workspaceID string, category string) ([]*Template, error)

	// UpdateTemplate updates an existing template, creating a new version
	UpdateTemplate(ctx context.Context, workspaceID string, template *Template) error

	// DeleteTemplate deletes a template by ID
	DeleteTemplate(ctx context.Context, workspaceID string, id string) error

	// RenderTemplate renders a template against a test-data context
	RenderTemplate(ctx context.Context, req RenderTemplateRequest) (*RenderTemplateResponse, error)
}

// TemplateRepository provides database operations for templates
type TemplateRepository interface {
	// CreateTemplate creates a new template in the database
	CreateTemplate(ctx context.Context, workspaceID string, template *Template) error

	// GetTemplateByID retrieves a template by its ID and optional version
	GetTemplateByID(ctx context.Context, workspaceID string, id string, version int64) (*Template, error)

	// GetTemplateLatestVersion retrieves the latest version of a template
	GetTemplateLatestVersion(ctx context.Context, workspaceID string, id string) (int64, error)

	// GetTemplates retrieves all templates
	GetTemplates(ctx context.Context, workspaceID string, category string) ([]*Template, error)

	// UpdateTemplate updates an existing template, creating a new version and
	// pruning versions beyond maxTemplateVersions
	UpdateTemplate(ctx context.Context, workspaceID string, template *Template) error

	// DeleteTemplate deletes a template
	DeleteTemplate(ctx context.Context, workspaceID string, id string) error
}

// ErrTemplateNotFound is returned when a template is not found
type ErrTemplateNotFound struct {
	Message string
}

func (e *ErrTemplateNotFound) Error() string {
	return e.Message
}

// TrackingSettings carries the public base URL and UTM parameters used to
// build the tracking links embedded in a rendered email.
type TrackingSettings struct {
	Endpoint    string `json:"endpoint"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
}

// TemplateDataRequest groups parameters for building template data
type TemplateDataRequest struct {
	WorkspaceID        string           `json:"workspace_id"`
	WorkspaceSecretKey string           `json:"workspace_secret_key"`
	ContactWithList    ContactWithList  `json:"contact_with_list"`
	TrackingID         string           `json:"tracking_id"`
	TrackingSettings   TrackingSettings `json:"tracking_settings"`
	Broadcast          *Broadcast       `json:"broadcast,omitempty"`
}

// Validate ensures that the template data request has all required fields
func (r *TemplateDataRequest) Validate() error {
	if r.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if r.WorkspaceSecretKey == "" {
		return fmt.Errorf("workspace_secret_key is required")
	}
	if r.TrackingID == "" {
		return fmt.Errorf("tracking_id is required")
	}
	return nil
}

// BuildTemplateData creates the rendering context map passed to
// pkg/renderer: the contact, the broadcast (plus UTM parameters), the
// list, and the four tracking-endpoint URLs from SPEC_FULL.md §4.9
// (open pixel, click redirect base, unsubscribe, web view).
func BuildTemplateData(req TemplateDataRequest) (MapOfAny, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template data request: %w", err)
	}

	templateData := MapOfAny{}

	if req.ContactWithList.Contact != nil {
		contactData, err := req.ContactWithList.Contact.ToMapOfAny()
		if err != nil {
			return nil, fmt.Errorf("failed to convert contact to template data: %w", err)
		}
		templateData["contact"] = contactData
	} else {
		templateData["contact"] = MapOfAny{}
	}

	if req.Broadcast != nil {
		templateData["broadcast"] = MapOfAny{
			"id":   req.Broadcast.ID,
			"name": req.Broadcast.Name,
		}

		if req.TrackingSettings.UTMSource != "" {
			templateData["utm_source"] = req.TrackingSettings.UTMSource
		}
		if req.TrackingSettings.UTMMedium != "" {
			templateData["utm_medium"] = req.TrackingSettings.UTMMedium
		}
		if req.TrackingSettings.UTMCampaign != "" {
			templateData["utm_campaign"] = req.TrackingSettings.UTMCampaign
		}
		if req.TrackingSettings.UTMTerm != "" {
			templateData["utm_term"] = req.TrackingSettings.UTMTerm
		}
		if req.TrackingSettings.UTMContent != "" {
			templateData["utm_content"] = req.TrackingSettings.UTMContent
		}
	}

	if req.ContactWithList.ListID != "" {
		templateData["list"] = MapOfAny{
			"id":   req.ContactWithList.ListID,
			"name": req.ContactWithList.ListName,
		}
	}

	base := req.TrackingSettings.Endpoint
	trackingID := url.PathEscape(req.TrackingID)

	templateData["message_id"] = req.TrackingID
	templateData["tracking_opens_url"] = fmt.Sprintf("%s/t/o/%s", base, trackingID)
	templateData["unsubscribe_link"] = fmt.Sprintf("%s/t/u/%s", base, trackingID)
	templateData["view_in_browser_link"] = fmt.Sprintf("%s/t/v/%s", base, trackingID)

	return templateData, nil
}
