package restful

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DefaultLimit is the page size Index falls back to when the client paginates
// without an explicit limit.
const DefaultLimit = 20

// indexFields is the pagination/projection contract every Index call
// resolves against the request's query string.
var indexFields = Fields{
	"with_data":  {Default: true, Validator: Predicate(IsBool), Type: Coerce(ToBool)},
	"with_total": {Default: true, Validator: Predicate(IsBool), Type: Coerce(ToBool)},
	"limit":      {Validator: MinInt(1), Type: Coerce(ToInt)},
	"page":       {Validator: MinInt(1), Type: Coerce(ToInt)},
	"offset":     {Validator: MinInt(1), Type: Coerce(ToInt)},
}

// CreateOptions configures Create.
type CreateOptions struct {
	// Where identifies the entity; it decides whether one already exists.
	Where map[string]any
	// Defaults supplies the remaining field values for a newly created
	// entity.
	Defaults map[string]any
	Render   RenderFunc
}

// ShowOptions configures Show.
type ShowOptions struct {
	Where  map[string]any
	Render RenderFunc
	Append AppendFunc
}

// IndexOptions configures Index.
type IndexOptions struct {
	// Query is the base query that pagination parameters are layered onto.
	// Index mutates it in place; nil means an unrestricted query.
	Query  *QueryOptions
	Render RenderFunc
	Append AppendFunc
}

// UpdateOptions configures Update.
type UpdateOptions struct {
	Where map[string]any
	// Values holds the new field values. Keys with a nil value are treated
	// as not provided and skipped.
	Values map[string]any
}

// DestroyOptions configures Destroy.
type DestroyOptions struct {
	Where map[string]any
}

// IndexMeta is the pagination metadata Index echoes back: the limit and page
// the client sent, the offset actually applied to the query, and the total
// count. Fields the request didn't produce are omitted.
type IndexMeta struct {
	Limit  *int   `json:"limit,omitempty" yaml:"limit,omitempty"`
	Page   *int   `json:"page,omitempty" yaml:"page,omitempty"`
	Offset *int   `json:"offset,omitempty" yaml:"offset,omitempty"`
	Total  *int64 `json:"total,omitempty" yaml:"total,omitempty"`
}

// IndexResult is the response document Index writes: the rendered entities
// plus pagination metadata. Data is always present, `[]` when the client
// asked for no data.
type IndexResult struct {
	Data []any     `json:"data" yaml:"data"`
	Meta IndexMeta `json:"meta" yaml:"meta"`
}

// QueryMap flattens the request's query string into the map shape the
// resolver consumes, keeping the first value of each key.
func QueryMap(c *gin.Context) map[string]any {
	query := c.Request.URL.Query()
	out := make(map[string]any, len(query))
	for key, values := range query {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

// Create implements the POST verb: find-or-create the entity identified by
// opts.Where, answering 201 with its rendered form, or 409 when it already
// exists.
func Create(c *gin.Context, m Model, opts CreateOptions) error {
	entity, created, err := m.FindOrCreate(c.Request.Context(), FindOrCreateOptions{
		Where:    opts.Where,
		Defaults: opts.Defaults,
	})
	if err != nil {
		return err
	}
	if !created {
		return Error409Conflict("resource already exists")
	}

	body, err := renderEntity(entity, opts.Render)
	if err != nil {
		return err
	}

	Respond(c, http.StatusCreated, body)
	return nil
}

// Show implements the single-entity GET verb: 200 with the rendered entity,
// or 404 when opts.Where matches nothing.
func Show(c *gin.Context, m Model, opts ShowOptions) error {
	entity, err := m.FindOne(c.Request.Context(), opts.Where)
	if err != nil {
		return err
	}
	if entity == nil {
		return Error404NotFound("resource not found")
	}

	body, err := renderEntity(entity, opts.Render)
	if err != nil {
		return err
	}
	if opts.Append != nil {
		if body, err = opts.Append(body); err != nil {
			return err
		}
	}

	Respond(c, http.StatusOK, body)
	return nil
}

// Update implements the PUT verb: load the entity, assign every provided
// value, save, 204. Missing entities answer 404.
func Update(c *gin.Context, m Model, opts UpdateOptions) error {
	ctx := c.Request.Context()

	entity, err := m.FindOne(ctx, opts.Where)
	if err != nil {
		return err
	}
	if entity == nil {
		return Error404NotFound("resource not found")
	}

	names := maps.Keys(opts.Values)
	slices.Sort(names)
	for _, name := range names {
		if opts.Values[name] == nil {
			continue
		}
		entity.Set(name, opts.Values[name])
	}

	if err := entity.Save(ctx); err != nil {
		return err
	}

	Respond(c, http.StatusNoContent, nil)
	return nil
}

// Destroy implements the DELETE verb: remove the entity, 204. Missing
// entities answer 404.
func Destroy(c *gin.Context, m Model, opts DestroyOptions) error {
	ctx := c.Request.Context()

	entity, err := m.FindOne(ctx, opts.Where)
	if err != nil {
		return err
	}
	if entity == nil {
		return Error404NotFound("resource not found")
	}

	if err := entity.Destroy(ctx); err != nil {
		return err
	}

	Respond(c, http.StatusNoContent, nil)
	return nil
}

// Index implements the collection GET verb: resolve the pagination
// parameters from the query string, list matching entities, count them, and
// answer 200 with `{data, meta}`.
//
// `limit`, `page` and `offset` must be integers of at least 1 when present.
// Pagination activates when page or offset is given: the limit falls back to
// DefaultLimit, and page (which wins over a raw offset) is converted to
// offset = (page-1) * limit. A bare limit caps the listing without offsetting
// it. `with_data=false` skips the listing query and returns `data: []`;
// `with_total=false` skips the count.
func Index(c *gin.Context, m Model, opts IndexOptions) error {
	params, err := Resolve(QueryMap(c), indexFields)
	if err != nil {
		return err
	}

	query := opts.Query
	if query == nil {
		query = &QueryOptions{}
	}

	limit, hasLimit := params["limit"].(int)
	page, hasPage := params["page"].(int)
	offset, hasOffset := params["offset"].(int)

	if hasPage || hasOffset {
		if !hasLimit {
			limit = DefaultLimit
		}
		query.Limit = &limit
		if hasPage {
			// A page far past the data yields an empty window, never a
			// wrapped negative offset.
			pageOffset := math.MaxInt
			if page-1 <= math.MaxInt/limit {
				pageOffset = (page - 1) * limit
			}
			query.Offset = &pageOffset
		} else {
			query.Offset = &offset
		}
	} else if hasLimit {
		query.Limit = &limit
	}

	result := IndexResult{Data: []any{}}

	if params["with_data"].(bool) {
		entities, err := m.FindAll(c.Request.Context(), query)
		if err != nil {
			return err
		}
		for _, entity := range entities {
			rendered, err := renderEntity(entity, opts.Render)
			if err != nil {
				return err
			}
			result.Data = append(result.Data, rendered)
		}
	}

	if params["with_total"].(bool) {
		total, err := m.Count(c.Request.Context(), query)
		if err != nil {
			return err
		}
		result.Meta.Total = &total
	}

	if hasLimit {
		result.Meta.Limit = &limit
	}
	if hasPage {
		result.Meta.Page = &page
	}
	result.Meta.Offset = query.Offset

	var body any = result
	if opts.Append != nil {
		if body, err = opts.Append(result); err != nil {
			return err
		}
	}

	Respond(c, http.StatusOK, body)
	return nil
}
