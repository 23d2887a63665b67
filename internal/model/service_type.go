package model

import "strings"

type ServiceType string

const (
	ServiceCardProblems ServiceType = "CARD_PROBLEMS"
	ServiceLoans        ServiceType = "LOANS"
	ServiceOther        ServiceType = "OTHER"
)

// ServiceTypes lists the closed set in display order.
var ServiceTypes = []ServiceType{ServiceCardProblems, ServiceLoans, ServiceOther}

func (t ServiceType) String() string { return string(t) }

func (t ServiceType) Valid() bool {
	return t == ServiceCardProblems || t == ServiceLoans || t == ServiceOther
}

// ParseServiceType accepts the enum name in any case, with '-' or ' ' in place of '_'.
// Empty input returns ("", false).
func ParseServiceType(s string) (ServiceType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	s = strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(s))
	t := ServiceType(s)
	if !t.Valid() {
		return "", false
	}
	return t, true
}
