// Package notify delivers email and SMS out of band. Request handlers publish
// events to a queue; a worker pool renders and sends them, retrying a few
// times before giving up. Delivery failures never reach the caller.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"
)

type Type string

const (
	TypeWelcome           Type = "welcome"
	TypeCraftsmanApproved Type = "craftsman_approved"
	TypePasswordReset     Type = "password_reset"
	TypeJobUpdate         Type = "job_update"
)

// Event is one notification to one recipient. Email and Phone are both
// optional; whichever is set gets a message.
type Event struct {
	Type     Type              `json:"type"`
	Name     string            `json:"name"`
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Attempts int               `json:"attempts"`
	// Channels already delivered on an earlier attempt.
	EmailSent bool `json:"email_sent,omitempty"`
	SMSSent   bool `json:"sms_sent,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. Used when no queue is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Dropper logs and drops every event. It stands in for the queue when Redis
// is unreachable so lost notifications show up in the logs.
type Dropper struct {
	Log *logrus.Logger
}

func (d Dropper) Publish(_ context.Context, ev Event) error {
	d.Log.WithFields(logrus.Fields{
		"type":  ev.Type,
		"email": ev.Email,
		"phone": ev.Phone != "",
	}).Warn("notify: queue unavailable, event dropped")
	return nil
}

type Message struct {
	Subject string
	HTML    string
	SMS     string
}

func displayName(name string) string {
	if name == "" {
		return "User"
	}
	return name
}

// Names and service descriptions are user input, so bodies go through
// html/template and never through Sprintf.
var emailTemplates = map[Type]*template.Template{
	TypeWelcome: template.Must(template.New("welcome").Parse(
		`<p>Hi {{.Name}},</p><p>Welcome to Kaakazini! You are now registered as a {{.Data.role}}.</p>` +
			`<p>We are excited to have you on board!</p>`)),
	TypeCraftsmanApproved: template.Must(template.New("approved").Parse(
		`<p>Hi {{.Name}},</p><p>Good news! Your profile on <b>Kaakazini</b> has been approved by the admin.</p>` +
			`<p>You can now access all features.</p><br><p>The Kaakazini Team</p>`)),
	TypePasswordReset: template.Must(template.New("reset").Parse(
		`<p>Hi {{.Name}},</p><p>Use the link below to set a new password. It expires in one hour.</p>` +
			`<p><a href="{{.Data.link}}">{{.Data.link}}</a></p><p>If you did not ask for this, ignore this email.</p>`)),
	TypeJobUpdate: template.Must(template.New("job").Parse(
		`<p>Hi {{.Name}},</p><p>Your {{.Data.service}} job is now {{.Data.status}}.</p>`)),
}

// Render builds the email and SMS bodies for an event.
func Render(ev Event) (Message, error) {
	tmpl, ok := emailTemplates[ev.Type]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification type %q", ev.Type)
	}
	var body bytes.Buffer
	err := tmpl.Execute(&body, struct {
		Name string
		Data map[string]string
	}{displayName(ev.Name), ev.Data})
	if err != nil {
		return Message{}, fmt.Errorf("render %s: %w", ev.Type, err)
	}

	msg := Message{HTML: body.String()}
	switch ev.Type {
	case TypeWelcome:
		msg.Subject = "Welcome to Kaakazini!"
		msg.SMS = "Welcome to the Kaakazini platform!"
	case TypeCraftsmanApproved:
		msg.Subject = "Your Craftsman Profile Has Been Approved"
	case TypePasswordReset:
		msg.Subject = "Reset your Kaakazini password"
	case TypeJobUpdate:
		msg.Subject = "Job update: " + ev.Data["status"]
		msg.SMS = fmt.Sprintf("Kaakazini: Your %s job is now %s.", ev.Data["service"], ev.Data["status"])
	}
	return msg, nil
}
