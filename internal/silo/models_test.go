package silo_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/silowatch/internal/silo"
)

var _ = Describe("Models", func() {
	Describe("Severity", func() {
		It("should rank warning below critical", func() {
			Expect(silo.SeverityLess(silo.SeverityWarning, silo.SeverityCritical)).To(BeTrue())
			Expect(silo.SeverityLess(silo.SeverityCritical, silo.SeverityWarning)).To(BeFalse())
		})

		It("should not rank a severity below itself", func() {
			Expect(silo.SeverityLess(silo.SeverityWarning, silo.SeverityWarning)).To(BeFalse())
			Expect(silo.SeverityLess(silo.SeverityCritical, silo.SeverityCritical)).To(BeFalse())
		})

		It("should rank unknown severities below warning", func() {
			Expect(silo.SeverityLess(silo.Severity("bogus"), silo.SeverityWarning)).To(BeTrue())
		})
	})

	Describe("table names", func() {
		It("should map models to their tables", func() {
			Expect(silo.Reading{}.TableName()).To(Equal("readings"))
			Expect(silo.Silo{}.TableName()).To(Equal("silos"))
			Expect(silo.SiloEvent{}.TableName()).To(Equal("silo_events"))
			Expect(silo.Alert{}.TableName()).To(Equal("alerts"))
			Expect(silo.PushSubscription{}.TableName()).To(Equal("push_subscriptions"))
		})
	})

	Describe("Alert", func() {
		It("should initialize unacknowledged", func() {
			alert := silo.Alert{}
			Expect(alert.Acknowledged).To(BeFalse())
			Expect(alert.AckBy).To(BeNil())
			Expect(alert.AckAt).To(BeNil())
		})
	})
})
