package validity

import (
	"context"

	"github.com/google/uuid"
)

// Reader is the read side of a rule repository. Reads are snapshot reads and take no scope lock.
type Reader[P Payload] interface {
	// Get returns *NotFoundError when the id is unknown.
	Get(ctx context.Context, id uuid.UUID) (Rule[P], error)
	// ListByScope returns the scope's rules ordered by ValidFrom ascending. Rows
	// that fail to decode come back as *CorruptRuleError values combined with
	// multierr, alongside the rules that did decode.
	ListByScope(ctx context.Context, scope ScopeKey) ([]Rule[P], error)
}

// Tx is a unit of work bound to a single scope.
type Tx[P Payload] interface {
	Reader[P]
	Insert(ctx context.Context, rule Rule[P]) error
	Update(ctx context.Context, rule Rule[P]) error
	RecordEvent(ctx context.Context, event Event[P]) error
}

// Repository persists one rule kind. Transact must serialize writers of the same
// scope for the whole read-validate-write cycle; different scopes may run concurrently.
type Repository[P Payload] interface {
	Reader[P]
	Transact(ctx context.Context, scope ScopeKey, fn func(ctx context.Context, tx Tx[P]) error) error
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) Actor {
	if ctx == nil {
		return Actor{}
	}
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
