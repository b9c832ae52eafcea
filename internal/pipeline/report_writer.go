package pipeline

import "phishguard/pkg/models"

// ReportWriter writes threat report outputs.
type ReportWriter interface {
	WriteReports(reports []*models.Report) error
	Close() error
}
