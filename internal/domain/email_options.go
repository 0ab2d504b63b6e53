package domain

import (
	"encoding/base64"
	"fmt"
)

// EmailAttachment is a single file attached to an outbound email. Content
// is base64-encoded, matching the wire format every provider adapter
// (SES/SMTP/Mailgun/Mailjet/Postmark/SparkPost) accepts directly.
type EmailAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"` // base64 encoded
	ContentType string `json:"content_type,omitempty"`
	ContentID   string `json:"content_id,omitempty"` // for inline images, e.g. "cid:logo.png"
	Disposition string `json:"disposition,omitempty"` // "attachment" (default) or "inline"
}

// DecodeContent base64-decodes the attachment body.
func (a EmailAttachment) DecodeContent() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Content)
}

// EmailOptions carries the per-send knobs every provider driver honors
// on top of the basic from/to/subject/body fields: extra recipients, a
// reply-to override, the RFC-8058 List-Unsubscribe header, and
// attachments.
type EmailOptions struct {
	ReplyTo            string            `json:"reply_to,omitempty"`
	CC                 []string          `json:"cc,omitempty"`
	BCC                []string          `json:"bcc,omitempty"`
	ListUnsubscribeURL string            `json:"list_unsubscribe_url,omitempty"`
	Attachments        []EmailAttachment `json:"attachments,omitempty"`
}

// SendEmailProviderRequest is the provider-agnostic request every
// EmailProvider driver (SES/SMTP/Mailgun/Mailjet/Postmark/SparkPost)
// consumes to perform one send.
type SendEmailProviderRequest struct {
	WorkspaceID   string
	IntegrationID string
	MessageID     string
	FromAddress   string
	FromName      string
	To            string
	Subject       string
	Content       string
	Provider      *EmailProvider
	EmailOptions  EmailOptions
}

// ChannelTemplate names the template to use for a SendEmailRequest. It is
// its own type so non-email channels (future SMS/push) can carry a
// channel-specific template reference alongside the same request shape.
type ChannelTemplate struct {
	TemplateID string `json:"template_id"`
	Version    int64  `json:"version,omitempty"`
}

// SendEmailRequest asks EmailServiceInterface.SendEmailForTemplate to
// render a template and deliver it to a single contact, recording
// everything the analytics reducer needs to attribute opens/clicks back
// to a broadcast or automation.
type SendEmailRequest struct {
	WorkspaceID      string
	IntegrationID    string
	MessageID        string
	ExternalID       *string
	BroadcastID      *string
	AutomationID     *string
	Contact          *Contact
	TemplateConfig   ChannelTemplate
	MessageData      MessageData
	TrackingSettings TrackingSettings
	EmailProvider    *EmailProvider
	EmailOptions     EmailOptions
}

// Validate checks the fields SendEmailForTemplate needs to render and
// dispatch the template, in the order a caller is most likely to have
// forgotten them.
func (r *SendEmailRequest) Validate() error {
	if r.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if r.MessageID == "" {
		return fmt.Errorf("message_id is required")
	}
	if r.IntegrationID == "" {
		return fmt.Errorf("integration_id is required")
	}
	if r.Contact == nil {
		return fmt.Errorf("contact is required")
	}
	if r.EmailProvider == nil {
		return fmt.Errorf("email provider is required")
	}
	if r.TemplateConfig.TemplateID == "" {
		return fmt.Errorf("template_id is required")
	}
	return nil
}
