package mysql

import (
	"context"

	"termpool/pkg/config"
)

// Repository aggregates the MySQL repositories
type Repository struct {
	ds *Datastore

	AuditEvents *AuditEventRepository
	Escalations *EscalationRepository
}

// NewRepository connects, migrates and wires every repository
func NewRepository(ctx context.Context, cfg config.MySQLConfig) (*Repository, error) {
	ds, err := NewDatastore(cfg)
	if err != nil {
		return nil, err
	}
	if err := ds.Migrate(ctx); err != nil {
		_ = ds.Close()
		return nil, err
	}
	return &Repository{
		ds:          ds,
		AuditEvents: NewAuditEventRepository(ds),
		Escalations: NewEscalationRepository(ds),
	}, nil
}

// Datastore returns the underlying datastore for transaction support
func (r *Repository) Datastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
