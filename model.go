package restful

import (
	"context"

	"github.com/fatih/structs"
	"github.com/mitchellh/mapstructure"
)

// Model is the persistence collaborator the verb handlers drive. Implement
// it over your ORM, a plain database/sql table, or anything else that can
// answer these four queries. The handlers only ever call these methods, so
// how queries execute is entirely the implementation's business.
//
// The `memstore` and `sqlstore` subpackages provide ready-made
// implementations for tests and small services.
type Model interface {
	// FindOrCreate returns the entity matching opts.Where, creating it from
	// Where merged with Defaults when no match exists. The bool reports
	// whether a new entity was created.
	FindOrCreate(ctx context.Context, opts FindOrCreateOptions) (Entity, bool, error)

	// FindOne returns the first entity matching where, or (nil, nil) when
	// nothing matches. Absence is not an error.
	FindOne(ctx context.Context, where map[string]any) (Entity, error)

	// FindAll returns entities matching opts in a stable order.
	FindAll(ctx context.Context, opts *QueryOptions) ([]Entity, error)

	// Count returns the number of entities matching opts.Where, ignoring
	// Limit and Offset.
	Count(ctx context.Context, opts *QueryOptions) (int64, error)
}

// Entity is a single record handed out by a Model.
type Entity interface {
	// Get returns the named field's current value.
	Get(field string) any

	// Set stages a new value for the named field. It does not persist;
	// call Save for that.
	Set(field string, value any)

	// Save persists staged changes.
	Save(ctx context.Context) error

	// Destroy removes the record.
	Destroy(ctx context.Context) error

	// ToJSON returns the record's serializable representation, typically a
	// map[string]any. It is what clients see when no render function is
	// configured.
	ToJSON() any
}

// FindOrCreateOptions carries the match criteria and creation defaults for
// Model.FindOrCreate. Where takes precedence over Defaults for overlapping
// keys.
type FindOrCreateOptions struct {
	Where    map[string]any
	Defaults map[string]any
}

// QueryOptions carries list-query criteria for FindAll and Count. Limit and
// Offset are pointers so "never set" is distinguishable from zero; Index
// fills them in place on the instance the caller passed.
type QueryOptions struct {
	// Where matches entities whose fields equal every listed value.
	Where map[string]any

	// Order lists field names to sort by; prefix a name with "-" for
	// descending.
	Order []string

	Limit  *int
	Offset *int
}

// RenderFunc converts an entity into its response representation. A nil
// RenderFunc means Entity.ToJSON.
type RenderFunc func(Entity) (any, error)

// AppendFunc post-processes a handler's result just before it is written,
// replacing it entirely. Show applies it to the rendered entity, Index to
// the whole `{data, meta}` document.
type AppendFunc func(result any) (any, error)

func renderEntity(e Entity, render RenderFunc) (any, error) {
	if render == nil {
		return e.ToJSON(), nil
	}
	return render(e)
}

// DecodeEntity decodes an entity's ToJSON representation into dst, a pointer
// to a struct with `mapstructure` tags. Handy in render functions and tests
// that want typed access to model data.
func DecodeEntity(e Entity, dst any) error {
	return mapstructure.Decode(e.ToJSON(), dst)
}

// Values converts a tagged struct into the map shape the resolver and model
// options consume, honoring `structs:"name"` field tags. v must be a struct
// or a pointer to one.
func Values(v any) map[string]any {
	return structs.Map(v)
}
