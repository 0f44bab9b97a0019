package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/unievents/unievents-backend/internal/types"
)

// normalizeLang collapses a stored language preference ("system",
// "en-US", empty) to the two-letter code used by the templates.
// Romanian is the default.
func normalizeLang(pref string) string {
	lang := strings.TrimSpace(pref)
	if lang == "" || lang == "system" {
		return "ro"
	}
	lang = strings.ToLower(strings.SplitN(lang, ",", 2)[0])
	if len(lang) > 2 {
		lang = lang[:2]
	}
	if lang == "en" {
		return "en"
	}
	return "ro"
}

func formatEventTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

// RenderWeeklyDigestEmail builds the subject, plain-text and HTML
// bodies for one user's weekly digest.
func RenderWeeklyDigestEmail(user *types.User, events []*types.Event, lang string) (subject, bodyText, bodyHTML string) {
	var text strings.Builder
	var html strings.Builder

	if lang == "en" {
		subject = "Your events for this week"
		text.WriteString(fmt.Sprintf("Hi %s,\n\nHere are the events we picked for you this week:\n\n", user.Email))
		html.WriteString(fmt.Sprintf("<p>Hi %s,</p><p>Here are the events we picked for you this week:</p><ul>", user.Email))
	} else {
		subject = "Evenimentele tale pentru săptămâna aceasta"
		text.WriteString(fmt.Sprintf("Salut %s,\n\nAcestea sunt evenimentele alese pentru tine săptămâna aceasta:\n\n", user.Email))
		html.WriteString(fmt.Sprintf("<p>Salut %s,</p><p>Acestea sunt evenimentele alese pentru tine săptămâna aceasta:</p><ul>", user.Email))
	}

	for _, event := range events {
		start := formatEventTime(event.StartTime)
		if start != "" {
			text.WriteString(fmt.Sprintf("- %s (%s)\n", event.Title, start))
			html.WriteString(fmt.Sprintf("<li><strong>%s</strong> (%s)</li>", event.Title, start))
		} else {
			text.WriteString(fmt.Sprintf("- %s\n", event.Title))
			html.WriteString(fmt.Sprintf("<li><strong>%s</strong></li>", event.Title))
		}
	}
	html.WriteString("</ul>")

	if lang == "en" {
		text.WriteString("\nSee you there!")
		html.WriteString("<p>See you there!</p>")
	} else {
		text.WriteString("\nNe vedem acolo!")
		html.WriteString("<p>Ne vedem acolo!</p>")
	}
	return subject, text.String(), html.String()
}

// RenderFillingFastEmail builds the alert for a favorited event that is
// running out of seats.
func RenderFillingFastEmail(user *types.User, event *types.Event, availableSeats int, lang string) (subject, bodyText, bodyHTML string) {
	start := formatEventTime(event.StartTime)
	if lang == "en" {
		subject = fmt.Sprintf("Seats are filling fast: %s", event.Title)
		bodyText = fmt.Sprintf(
			"Hi %s,\n\n'%s' is filling fast: only %d seats left.\nStarts at: %s\n\nRegister now if you still want a spot!",
			user.Email, event.Title, availableSeats, start,
		)
		bodyHTML = fmt.Sprintf(
			"<p>Hi %s,</p><p><strong>%s</strong> is filling fast: only <strong>%d</strong> seats left.</p><p><strong>Starts:</strong> %s</p><p>Register now if you still want a spot!</p>",
			user.Email, event.Title, availableSeats, start,
		)
		return subject, bodyText, bodyHTML
	}
	subject = fmt.Sprintf("Locurile se ocupă rapid: %s", event.Title)
	bodyText = fmt.Sprintf(
		"Salut %s,\n\nLa evenimentul '%s' au mai rămas doar %d locuri.\nData și ora de start: %s\n\nÎnscrie-te acum dacă mai vrei un loc!",
		user.Email, event.Title, availableSeats, start,
	)
	bodyHTML = fmt.Sprintf(
		"<p>Salut %s,</p><p>La <strong>%s</strong> au mai rămas doar <strong>%d</strong> locuri.</p><p><strong>Începe la:</strong> %s</p><p>Înscrie-te acum dacă mai vrei un loc!</p>",
		user.Email, event.Title, availableSeats, start,
	)
	return subject, bodyText, bodyHTML
}
