package worker

import (
	"context"
	"fmt"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
)

// LogMirror stands in for the spreadsheet when none is configured: it only
// logs what would have been written.
type LogMirror struct {
	logger *log.Logger
}

var _ sheets.Mirror = (*LogMirror)(nil)

func NewLogMirror(logger *log.Logger) *LogMirror {
	if logger == nil {
		logger = log.Default(log.ComponentSheets)
	}
	return &LogMirror{logger: logger.WithComponent(log.ComponentSheets)}
}

func (m *LogMirror) AppendTransaction(ctx context.Context, userID string, tx core.Transaction) (string, error) {
	m.logger.InfoContext(ctx, "Mirror append",
		log.FieldUserID, userID,
		log.FieldTransactionID, tx.ID,
		log.FieldType, tx.Type,
		log.FieldCategory, tx.Category,
		log.FieldAmountCents, tx.Amount.Cents,
		log.FieldDate, tx.Date.String())
	return fmt.Sprintf("log:%s", tx.ID), nil
}

func (m *LogMirror) DeleteTransaction(ctx context.Context, tx core.Transaction) error {
	m.logger.InfoContext(ctx, "Mirror delete", log.FieldTransactionID, tx.ID)
	return nil
}
