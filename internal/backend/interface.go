// Package backend assembles the persistence and messaging stack selected by
// configuration.
package backend

import (
	"context"

	"gagyebu/internal/amqp"
	"gagyebu/internal/repository"
	"gagyebu/internal/sheets"
)

// CleanupFunc releases what a factory opened.
type CleanupFunc func() error

// Result is everything a command needs to build its services. Publisher
// is nil when AMQP is not configured or unreachable.
type Result struct {
	Repo      repository.Repository
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
	CreateSummaryWriter(ctx context.Context, config Config) (sheets.SummaryWriter, error)
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

func (bt BackendType) String() string { return string(bt) }

// Config holds configuration for backend creation.
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}
