package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/k3a/html2text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

const mapsURL = "https://www.google.com/maps?q="

var templateFuncs = template.FuncMap{
	"title": cases.Title(language.English).String,
	"score": func(f float64) string { return strconv.FormatFloat(f, 'f', 0, 64) },
	"coord": func(f float64) string { return strconv.FormatFloat(f, 'f', 6, 64) },
	"stamp": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 MST") },
}

const locationBlock = `{{define "location"}}
{{- if .Location}}
<p><strong>Last known location:</strong> {{coord .Location.Latitude}}, {{coord .Location.Longitude}}
{{- if gt .Location.Accuracy 0.0}} (accuracy about {{score .Location.Accuracy}} m){{end}}<br>
<a href="{{.MapsLink}}">Open in Google Maps</a><br>
Updated {{stamp .Location.UpdatedAt}}</p>
{{- else}}
<p><strong>Location unavailable.</strong> No live position has been shared for this user.</p>
{{- end}}
{{end}}`

const adminTemplate = `<html><body>
<h2>Emergency reported for {{.UserLabel}}</h2>
<p>Emergency ID: {{.Record.ID}}<br>
User ID: {{.Record.UserID}}<br>
{{- if .Record.SessionID}}
Session ID: {{.Record.SessionID}}<br>
{{- end}}
Reported at: {{stamp .Record.CreatedAt}}<br>
Trigger: {{if .Record.Manual}}manual SOS{{else}}automatic detection{{end}}</p>
<p>Confidence: {{score .Record.Confidence}}<br>
Sensor {{score .Record.Breakdown.SensorScore}}, context {{score .Record.Breakdown.ContextScore}},
location {{score .Record.Breakdown.LocationScore}}, crowd {{score .Record.Breakdown.CrowdScore}}</p>
{{template "location" .}}
</body></html>`

const contactTemplate = `<html><body>
<h2>{{.UserLabel}} may need help</h2>
<p>Hello {{.Recipient.Name}},</p>
<p>You are listed as
{{- if .Recipient.Relationship}} {{.UserLabel}}'s emergency contact ({{title .Recipient.Relationship}}).
{{- else}} an emergency contact for {{.UserLabel}}.{{end}} SafeWatch detected a possible emergency at {{stamp .Record.CreatedAt}}.</p>
{{template "location" .}}
<p>Please try to reach {{.UserLabel}} now. If you cannot reach them and believe they are in danger,
call your local emergency number.</p>
</body></html>`

// Renderer turns an emergency into a per-recipient Message.
type Renderer struct {
	admin   *template.Template
	contact *template.Template
}

// NewRenderer parses the built-in templates.
func NewRenderer() (*Renderer, error) {
	admin, err := template.New("admin").Funcs(templateFuncs).Parse(locationBlock + adminTemplate)
	if err != nil {
		return nil, templateError(err, "admin")
	}
	contact, err := template.New("contact").Funcs(templateFuncs).Parse(locationBlock + contactTemplate)
	if err != nil {
		return nil, templateError(err, "contact")
	}
	return &Renderer{admin: admin, contact: contact}, nil
}

func templateError(err error, name string) error {
	return errors.New(err).
		Component("notification").
		Category(errors.CategoryConfiguration).
		Context("template", name).
		Build()
}

type templateData struct {
	Recipient model.Recipient
	Record    *model.EmergencyRecord
	Location  *model.LocationSample
	UserLabel string
	MapsLink  string
}

// Render builds the message for one recipient. Only the recipient type
// changes the content.
func (r *Renderer) Render(rcpt model.Recipient, rec *model.EmergencyRecord, loc *model.LocationSample) (Message, error) {
	data := templateData{
		Recipient: rcpt,
		Record:    rec,
		Location:  loc,
		UserLabel: rec.UserName,
	}
	if data.UserLabel == "" {
		data.UserLabel = "a SafeWatch user"
	}
	if loc != nil {
		data.MapsLink = mapsURL + strconv.FormatFloat(loc.Latitude, 'f', 6, 64) + "," +
			strconv.FormatFloat(loc.Longitude, 'f', 6, 64)
	}

	tmpl := r.contact
	subject := fmt.Sprintf("Emergency alert: %s may need help", data.UserLabel)
	if rcpt.Type == model.RecipientAdmin {
		tmpl = r.admin
		subject = fmt.Sprintf("[SafeWatch] Emergency %s reported (confidence %.0f)", rec.ID, rec.Confidence)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Message{}, errors.New(err).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("recipient_type", string(rcpt.Type)).
			Build()
	}
	html := buf.String()

	return Message{
		ToName:  rcpt.Name,
		ToEmail: rcpt.Email,
		Subject: subject,
		HTML:    html,
		Text:    html2text.HTML2Text(html),
	}, nil
}
