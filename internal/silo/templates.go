package silo

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Default notification texts. Silos can override any of these per channel;
// nil template fields fall back to the defaults.
const (
	DefaultMessageTemplate      = "[{level}] {silo}: {message} (value={value})"
	DefaultEmailSubjectTemplate = "Silo alert: {silo}"
)

// Fixed messages created by the luminosity event detector.
const (
	MessageSiloOpened = "Silo opened: luminosity change detected (possible maintenance)"
	MessageFireRisk   = "Luminosity alert detected (possible fire in the silo)"
)

// TemplateContext carries the values substituted into notification templates.
type TemplateContext struct {
	SiloName  string
	Level     Severity
	Message   string
	Value     string
	Timestamp time.Time
}

// RenderTemplate substitutes {silo}, {level}, {message}, {value} and
// {timestamp} placeholders. Unknown placeholders are left untouched so a
// misconfigured template still produces a usable notification.
func RenderTemplate(tmpl string, ctx TemplateContext) string {
	r := strings.NewReplacer(
		"{silo}", ctx.SiloName,
		"{level}", strings.ToUpper(string(ctx.Level)),
		"{message}", ctx.Message,
		"{value}", ctx.Value,
		"{timestamp}", ctx.Timestamp.UTC().Format(time.RFC3339),
	)
	return r.Replace(tmpl)
}

// TelegramText renders the telegram message for an alert on this silo.
func (s *Silo) TelegramText(ctx TemplateContext) string {
	return RenderTemplate(orDefault(s.TelegramTemplate, DefaultMessageTemplate), ctx)
}

// EmailSubject renders the email subject for an alert on this silo.
func (s *Silo) EmailSubject(ctx TemplateContext) string {
	return RenderTemplate(orDefault(s.EmailSubjectTemplate, DefaultEmailSubjectTemplate), ctx)
}

// EmailBody renders the email body for an alert on this silo.
func (s *Silo) EmailBody(ctx TemplateContext) string {
	return RenderTemplate(orDefault(s.EmailBodyTemplate, DefaultMessageTemplate), ctx)
}

// SMSText renders the SMS body for an alert on this silo.
func (s *Silo) SMSText(ctx TemplateContext) string {
	return RenderTemplate(orDefault(s.SMSTemplate, DefaultMessageTemplate), ctx)
}

func orDefault(tmpl *string, def string) string {
	if tmpl != nil && *tmpl != "" {
		return *tmpl
	}
	return def
}

// FormatValue renders an alert's triggering value for message templates.
func FormatValue(value map[string]any) string {
	if len(value) == 0 {
		return ""
	}
	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, value[k]))
	}
	return strings.Join(parts, " ")
}
