/*
Package notify delivers installment lifecycle notifications.

PURPOSE:
  The engine reports installment payments and overdue detections through
  the engine.Notifier interface. This package provides the logging-backed
  implementation used by the server: every event becomes a structured log
  line, the place a real deployment would hang email or webhook delivery.

SEE ALSO:
  - engine/store.go:       Notifier interface definition
  - engine/installment.go: the service emitting these events
*/
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/warp/commission-engine/engine"
)

// LogNotifier writes notification events as structured log entries.
type LogNotifier struct {
	logger *logrus.Logger
}

var _ engine.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) InstallmentPaid(_ context.Context, inst engine.CommissionInstallment) error {
	n.logger.WithFields(logrus.Fields{
		"module":         "notify",
		"event":          "installment_paid",
		"installment_id": string(inst.ID),
		"transaction_id": string(inst.TransactionID),
		"agent_id":       string(inst.AgentID),
		"number":         inst.Number,
		"amount":         inst.Amount.String(),
	}).Info("installment paid")
	return nil
}

func (n *LogNotifier) InstallmentOverdue(_ context.Context, inst engine.CommissionInstallment) error {
	n.logger.WithFields(logrus.Fields{
		"module":         "notify",
		"event":          "installment_overdue",
		"installment_id": string(inst.ID),
		"transaction_id": string(inst.TransactionID),
		"agent_id":       string(inst.AgentID),
		"number":         inst.Number,
		"amount":         inst.Amount.String(),
		"scheduled_date": inst.ScheduledDate.Format("2006-01-02"),
	}).Warn("installment overdue")
	return nil
}
