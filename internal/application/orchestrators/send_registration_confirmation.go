package orchestrators

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/yuin/goldmark"

	"coursedesk/internal/adapters/email"
	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

// RecordGetter fetches single records.
type RecordGetter interface {
	Get(ctx context.Context, appID, id string) (record.Record, error)
}

// Localizer renders translated, locale-formatted text.
type Localizer interface {
	T(locale, key string, data map[string]any) string
	FormatDate(locale, date string) string
	FormatMoney(locale string, amount float64) string
}

// SendRegistrationConfirmationInput carries the freshly created registration.
type SendRegistrationConfirmationInput struct {
	Registration record.Record
	Locale       string
}

// SendRegistrationConfirmationDeps holds dependencies for SendRegistrationConfirmation.
type SendRegistrationConfirmationDeps struct {
	Records   RecordGetter
	AppIDs    map[schema.Kind]string
	Sender    email.Sender
	Localizer Localizer
}

// ConfirmationResult reports what happened to the confirmation.
type ConfirmationResult struct {
	Sent      bool
	Simulated bool // the sender accepted the message without delivering it
	MessageID string
	To        string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>{{.Greeting}}</p>
<p>{{.Intro}}</p>
<table>
<tr><th align="left">{{.CourseLabel}}</th><td>{{.Course}}</td></tr>
<tr><th align="left">{{.PeriodLabel}}</th><td>{{.Start}} – {{.End}}</td></tr>
<tr><th align="left">{{.PriceLabel}}</th><td>{{.Price}}</td></tr>
</table>
{{.Description}}
<p>{{.Closing}}</p>
`))

// ExecuteSendRegistrationConfirmation resolves the participant and course of
// a registration and emails the participant a confirmation.
// PRE: input.Registration was just created
// POST: Sent is false without error when the registration has no
// participant or course, or the participant has no email address
func ExecuteSendRegistrationConfirmation(ctx context.Context, input SendRegistrationConfirmationInput, deps SendRegistrationConfirmationDeps) (ConfirmationResult, error) {
	reg := input.Registration
	participantID, ok := reference.Decode(reg.Fields.String("participant"))
	if !ok {
		slog.Info("registration_confirmation_skipped", "registration_id", reg.ID, "reason", "no_participant")
		return ConfirmationResult{}, nil
	}
	courseID, ok := reference.Decode(reg.Fields.String("course"))
	if !ok {
		slog.Info("registration_confirmation_skipped", "registration_id", reg.ID, "reason", "no_course")
		return ConfirmationResult{}, nil
	}

	participant, err := deps.Records.Get(ctx, deps.AppIDs[schema.KindParticipants], participantID)
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("load participant %s: %w", participantID, err)
	}
	to := participant.Fields.String("email")
	if to == "" {
		slog.Info("registration_confirmation_skipped", "registration_id", reg.ID, "reason", "no_email")
		return ConfirmationResult{}, nil
	}
	course, err := deps.Records.Get(ctx, deps.AppIDs[schema.KindCourses], courseID)
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("load course %s: %w", courseID, err)
	}

	html, err := renderConfirmation(input.Locale, participant, course, deps.Localizer)
	if err != nil {
		return ConfirmationResult{}, err
	}
	title := course.Fields.String("title")
	receipt, err := deps.Sender.Send(ctx, email.Message{
		To:       []string{to},
		Subject:  deps.Localizer.T(input.Locale, "email.confirmation.subject", map[string]any{"Course": title}),
		HTML:     html,
		Category: "registration_confirmation",
	})
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("send confirmation: %w", err)
	}

	slog.Info("registration_confirmation_sent", "registration_id", reg.ID, "message_id", receipt.MessageID, "simulated", receipt.Simulated)
	return ConfirmationResult{Sent: true, Simulated: receipt.Simulated, MessageID: receipt.MessageID, To: to}, nil
}

func renderConfirmation(locale string, participant, course record.Record, l Localizer) (string, error) {
	var desc bytes.Buffer
	if err := goldmark.Convert([]byte(course.Fields.String("description")), &desc); err != nil {
		return "", fmt.Errorf("render course description: %w", err)
	}

	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, map[string]any{
		"Greeting":    l.T(locale, "email.confirmation.greeting", map[string]any{"Name": participant.Fields.String("name")}),
		"Intro":       l.T(locale, "email.confirmation.intro", nil),
		"CourseLabel": l.T(locale, "field.courses.title", nil),
		"PeriodLabel": l.T(locale, "email.confirmation.period", nil),
		"PriceLabel":  l.T(locale, "field.courses.price", nil),
		"Course":      course.Fields.String("title"),
		"Start":       l.FormatDate(locale, course.Fields.String("start_date")),
		"End":         l.FormatDate(locale, course.Fields.String("end_date")),
		"Price":       l.FormatMoney(locale, course.Fields.Number("price")),
		"Description": template.HTML(desc.String()),
		"Closing":     l.T(locale, "email.confirmation.closing", nil),
	})
	if err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return buf.String(), nil
}
