package backend

import (
	"context"
	"errors"
	"fmt"

	"gagyebu/internal/amqp"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/repository"
	"gagyebu/internal/repository/memory"
	"gagyebu/internal/sheets"
	gsheet "gagyebu/internal/sheets/google"
	sheetsmem "gagyebu/internal/sheets/memory"
	"gagyebu/internal/storage"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger  *applog.Logger
	metrics *metrics.Metrics
}

func NewFactory(logger *applog.Logger, m *metrics.Metrics) *DefaultFactory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend), metrics: m}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the repository and, when configured, the AMQP
// publisher. An unreachable broker is logged and the backend runs without
// events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var repo repository.Repository
	switch config.Type {
	case SQLiteBackend:
		r, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo = r
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		repo = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	publisher := f.connectAMQP(ctx, config)

	return &Result{
		Repo:      repo,
		Publisher: publisher,
		Cleanup: func() error {
			var errs []error
			if publisher != nil {
				errs = append(errs, publisher.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) connectAMQP(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue,
		amqp.WithLogger(f.logger), amqp.WithMetrics(f.metrics))
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeNetwork)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}

// CreateSummaryWriter returns the Google Sheets writer when a spreadsheet
// is configured and an in-memory sheet otherwise.
func (f *DefaultFactory) CreateSummaryWriter(ctx context.Context, config Config) (sheets.SummaryWriter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.InfoContext(ctx, "No spreadsheet configured, exporting to memory")
		return sheetsmem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets export", "sheet", config.GoogleSheetName)
	return client, nil
}
