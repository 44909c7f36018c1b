// Package models contains the persistent entities of the automation service
package models

// All returns every persisted model in migration order
func All() []any {
	return []any{
		&Tenant{},
		&Recipient{},
		&Automation{},
		&SendRecord{},
		&FailureDetail{},
	}
}
