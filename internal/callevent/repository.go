package callevent

import "context"

// Repository is the persistence contract for call events.
//
// It MUST be append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, providerCallID string) ([]Event, error)
}
