package email

import "time"

// EmailTemplate defines the interface for email templates
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// PlanActivatedEmail is sent after a payment is approved and the plan applied.
type PlanActivatedEmail struct {
	Email          string
	PlanName       string
	QuotaRemaining int
	ExpiresAt      time.Time
	DashboardURL   string
}

func (e PlanActivatedEmail) Subject() string {
	return "Seu plano " + e.PlanName + " está ativo"
}

func (e PlanActivatedEmail) TemplateName() string {
	return "plan_activated"
}

// ExpiresOn formats the expiration date for the template.
func (e PlanActivatedEmail) ExpiresOn() string {
	return e.ExpiresAt.Format("02/01/2006")
}
