package silo_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/silowatch/internal/silo"
)

var _ = Describe("Templates", func() {
	var ctx silo.TemplateContext

	BeforeEach(func() {
		ctx = silo.TemplateContext{
			SiloName:  "North Silo",
			Level:     silo.SeverityCritical,
			Message:   "temperature 42 exceeds configured limit 35",
			Value:     "temperature=42",
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}
	})

	Describe("RenderTemplate", func() {
		It("should substitute all placeholders", func() {
			out := silo.RenderTemplate("[{level}] {silo}: {message} (value={value})", ctx)
			Expect(out).To(Equal("[CRITICAL] North Silo: temperature 42 exceeds configured limit 35 (value=temperature=42)"))
		})

		It("should render timestamps in RFC 3339 UTC", func() {
			out := silo.RenderTemplate("{timestamp}", ctx)
			Expect(out).To(Equal("2025-06-01T12:00:00Z"))
		})

		It("should leave unknown placeholders untouched", func() {
			out := silo.RenderTemplate("{silo} {bogus}", ctx)
			Expect(out).To(Equal("North Silo {bogus}"))
		})
	})

	Describe("per-silo overrides", func() {
		It("should use the default templates when none are set", func() {
			s := &silo.Silo{Name: "North Silo"}
			Expect(s.TelegramText(ctx)).To(ContainSubstring("[CRITICAL] North Silo"))
			Expect(s.EmailSubject(ctx)).To(Equal("Silo alert: North Silo"))
			Expect(s.SMSText(ctx)).To(Equal(s.TelegramText(ctx)))
		})

		It("should prefer a configured override", func() {
			tmpl := "ALERT {silo}"
			s := &silo.Silo{Name: "North Silo", SMSTemplate: &tmpl}
			Expect(s.SMSText(ctx)).To(Equal("ALERT North Silo"))
			// Other channels keep the default
			Expect(s.TelegramText(ctx)).To(ContainSubstring("value="))
		})

		It("should fall back to the default for an empty override", func() {
			empty := ""
			s := &silo.Silo{Name: "North Silo", EmailBodyTemplate: &empty}
			Expect(s.EmailBody(ctx)).To(ContainSubstring("North Silo"))
		})
	})

	Describe("FormatValue", func() {
		It("should render keys in deterministic order", func() {
			out := silo.FormatValue(map[string]any{"lux": 220.5, "flag": 1})
			Expect(out).To(Equal("flag=1 lux=220.5"))
		})

		It("should render an empty map as empty", func() {
			Expect(silo.FormatValue(nil)).To(BeEmpty())
			Expect(silo.FormatValue(map[string]any{})).To(BeEmpty())
		})
	})
})
