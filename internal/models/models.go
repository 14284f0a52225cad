// package models defines the data model for the subscription feed service
package models

import "context"

// Model defines the base interface for persisted records.
type Model interface {
	ID() string      // ID returns the unique identifier for this record
	Validate() error // Validate checks if the record's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Save(ctx context.Context, model T) error      // Save inserts or replaces a record
	Get(ctx context.Context, id string) (T, error) // Get retrieves a record by its ID
	Delete(ctx context.Context, id string) error   // Delete removes a record by its ID
	List(ctx context.Context) ([]T, error)         // List retrieves all records
}
