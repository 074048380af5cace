// Package findings reads audit finding records from the record store.
package findings

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a finding id does not exist.
var ErrNotFound = errors.New("finding not found")

// Finding is one audit finding record. JSON keys match the pseudonym
// field rules (owner, reported_by, financial_impact, location, id).
type Finding struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Severity        string    `json:"severity"`
	Status          string    `json:"status"`
	Category        string    `json:"category,omitempty"`
	Department      string    `json:"department,omitempty"`
	Location        string    `json:"location,omitempty"`
	Owner           string    `json:"owner,omitempty"`
	ReportedBy      string    `json:"reported_by,omitempty"`
	FinancialImpact float64   `json:"financial_impact,omitempty"`
	Year            int       `json:"year"`
	ReportedAt      string    `json:"reported_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Bucket is one group of a breakdown: a field value and how many findings
// carry it.
type Bucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
