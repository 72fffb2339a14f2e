// Package sheets синхронизирует оплаты с бизнес-таблицей Google Sheets
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/shestoi/paybridge/internal/service"
)

const (
	invoicesTab = "Invoices"
	paidMark    = "PAID"
)

// ErrJobRowNotFound в таблице нет строки с таким jobId
var ErrJobRowNotFound = errors.New("job row not found in sheet")

// Ledger отмечает Job оплаченной: во вкладке Invoices ищет строку, где колонка A = jobId,
// и пишет PAID в колонку D. Реализует notify.Sink.
type Ledger struct {
	logger        *zap.Logger
	svc           *sheetsapi.Service
	spreadsheetID string
}

// NewLedger создаёт клиента Sheets API, в opts передаются учётные данные и endpoint
func NewLedger(ctx context.Context, logger *zap.Logger, spreadsheetID string, opts ...option.ClientOption) (*Ledger, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("GOOGLE_SHEET_ID is empty")
	}

	opts = append([]option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}, opts...)
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets.NewService: %w", err)
	}

	return &Ledger{
		logger:        logger,
		svc:           svc,
		spreadsheetID: spreadsheetID,
	}, nil
}

func (l *Ledger) Name() string { return "sheets" }

// Deliver заказы без Job в таблице не отражаются
func (l *Ledger) Deliver(ctx context.Context, notice service.PaidNotice) error {
	if notice.JobID == "" {
		return nil
	}

	row, err := l.findJobRow(ctx, notice.JobID)
	if err != nil {
		return err
	}

	cell := fmt.Sprintf("%s!D%d", invoicesTab, row)
	_, err = l.svc.Spreadsheets.Values.Update(l.spreadsheetID, cell, &sheetsapi.ValueRange{
		Values: [][]interface{}{{paidMark}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("google values.update %s: %w", cell, err)
	}

	l.logger.Info("ledger row marked paid",
		zap.String("job_id", notice.JobID),
		zap.String("cell", cell),
	)
	return nil
}

// findJobRow номер строки (с 1) в колонке A
func (l *Ledger) findJobRow(ctx context.Context, jobID string) (int, error) {
	resp, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, invoicesTab+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("google values.get: %w", err)
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == jobID {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrJobRowNotFound, jobID)
}
