package restful

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Jeffail/gabs/v2"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/xeipuuv/gojsonschema"
)

// Resource mounts the generic handlers for one model under a URI path,
// following the usual REST mapping:
//
//	POST   /things       create
//	GET    /things       index
//	GET    /things/:id   show
//	PUT    /things/:id   update
//	PATCH  /things/:id   partial update (RFC 6902 / RFC 7386)
//	DELETE /things/:id   destroy
//
// The path parameter name doubles as the entity field used to look the
// resource up, so `WithKey("slug")` mounts `/things/:slug` and filters
// on the `slug` field.
type Resource struct {
	path  string
	model Model

	key          string
	single       string
	plural       string
	render       RenderFunc
	appendIndex  AppendFunc
	appendShow   AppendFunc
	fields       Fields
	createSchema *gojsonschema.Schema
	updateSchema *gojsonschema.Schema
	uniqueBy     []string
	filter       bool
}

// Option customizes a resource before it is mounted.
type Option func(*Resource)

// WithKey sets the path parameter and entity field used to address a
// single resource. Defaults to `id`.
func WithKey(name string) Option {
	return func(r *Resource) {
		r.key = name
	}
}

// WithName overrides the singular and plural names derived from the path.
func WithName(single, plural string) Option {
	return func(r *Resource) {
		r.single = single
		r.plural = plural
	}
}

// WithRender sets the representation function used by create, show, and
// index instead of the entity's own ToJSON.
func WithRender(render RenderFunc) Option {
	return func(r *Resource) {
		r.render = render
	}
}

// WithIndexAppend post-processes the index result before it is written.
func WithIndexAppend(fn AppendFunc) Option {
	return func(r *Resource) {
		r.appendIndex = fn
	}
}

// WithShowAppend post-processes the show result before it is written.
func WithShowAppend(fn AppendFunc) Option {
	return func(r *Resource) {
		r.appendShow = fn
	}
}

// WithFields declares the parameter rules applied to request bodies.
// Bodies are run through Resolve before create, update, and patch touch
// the model, so required, default, validator, and coercion rules all
// apply to writes.
func WithFields(fields Fields) Option {
	return func(r *Resource) {
		r.fields = fields
	}
}

// WithCreateSchema validates create request bodies against a JSON Schema
// before field resolution. The schema may be a Go value (map or struct)
// or a JSON string. Invalid schemas panic at setup time.
func WithCreateSchema(schema any) Option {
	return func(r *Resource) {
		r.createSchema = compileSchema(schema)
	}
}

// WithUpdateSchema validates update and patch results against a JSON
// Schema, like WithCreateSchema.
func WithUpdateSchema(schema any) Option {
	return func(r *Resource) {
		r.updateSchema = compileSchema(schema)
	}
}

// WithUniqueBy restricts the fields create uses to decide whether the
// resource already exists. Without it the whole resolved body is the
// uniqueness constraint.
func WithUniqueBy(fields ...string) Option {
	return func(r *Resource) {
		r.uniqueBy = fields
	}
}

// WithFilter enables the `filter` query parameter on index: a JSON
// object whose pairs become equality constraints on the listing.
func WithFilter() Option {
	return func(r *Resource) {
		r.filter = true
	}
}

// NewResource builds a resource for a model. The last path segment names
// the resource: `/v1/user-profiles` becomes plural `user-profiles`,
// singular `user-profile`.
func NewResource(path string, model Model, options ...Option) *Resource {
	r := &Resource{
		path:  path,
		model: model,
		key:   "id",
	}

	name := slug.Make(lastSegment(path))
	r.plural = name
	r.single = strings.TrimSuffix(name, "s")

	for _, option := range options {
		option(r)
	}

	return r
}

// Path returns the collection path the resource mounts under.
func (r *Resource) Path() string {
	return r.path
}

// Name returns the singular and plural resource names.
func (r *Resource) Name() (single, plural string) {
	return r.single, r.plural
}

// Mount registers the resource's routes on a router or route group.
func (r *Resource) Mount(router gin.IRouter) {
	router.POST(r.path, H(r.create))
	router.GET(r.path, H(r.index))

	item := r.path + "/:" + r.key
	router.GET(item, H(r.show))
	router.PUT(item, H(r.update))
	router.PATCH(item, H(r.patch))
	router.DELETE(item, H(r.destroy))
}

func (r *Resource) create(c *gin.Context) error {
	values, err := r.resolveBody(c, r.createSchema)
	if err != nil {
		return err
	}

	where := values
	var defaults map[string]any
	if len(r.uniqueBy) > 0 {
		where = make(map[string]any, len(r.uniqueBy))
		for _, name := range r.uniqueBy {
			if value, ok := values[name]; ok {
				where[name] = value
			}
		}
		defaults = values
	}

	return Create(c, r.model, CreateOptions{
		Where:    where,
		Defaults: defaults,
		Render:   r.render,
	})
}

func (r *Resource) index(c *gin.Context) error {
	query := &QueryOptions{}

	if r.filter {
		where, err := parseFilter(c.Query("filter"))
		if err != nil {
			return err
		}
		query.Where = where
	}

	return Index(c, r.model, IndexOptions{
		Query:  query,
		Render: r.render,
		Append: r.appendIndex,
	})
}

func (r *Resource) show(c *gin.Context) error {
	return Show(c, r.model, ShowOptions{
		Where:  r.whereKey(c),
		Render: r.render,
		Append: r.appendShow,
	})
}

func (r *Resource) update(c *gin.Context) error {
	values, err := r.resolveBody(c, r.updateSchema)
	if err != nil {
		return err
	}

	return Update(c, r.model, UpdateOptions{
		Where:  r.whereKey(c),
		Values: values,
	})
}

// patch loads the current representation, applies an RFC 6902 JSON Patch
// or RFC 7386 merge patch to it depending on the request content type,
// and runs the merged document through the normal update path.
func (r *Resource) patch(c *gin.Context) error {
	ctx := c.Request.Context()
	where := r.whereKey(c)

	entity, err := r.model.FindOne(ctx, where)
	if err != nil {
		return err
	}
	if entity == nil {
		return Error404NotFound("resource not found")
	}

	current, err := json.Marshal(entity.ToJSON())
	if err != nil {
		return err
	}

	patchBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}

	var merged []byte
	switch c.ContentType() {
	case "application/json-patch+json":
		patch, err := jsonpatch.DecodePatch(patchBody)
		if err != nil {
			return Error400BadRequest(fmt.Sprintf("invalid patch document: %s", err))
		}
		merged, err = patch.Apply(current)
		if err != nil {
			return Error422UnprocessableEntity(fmt.Sprintf("unable to apply patch: %s", err))
		}
	default:
		merged, err = jsonpatch.MergePatch(current, patchBody)
		if err != nil {
			return Error400BadRequest(fmt.Sprintf("invalid patch document: %s", err))
		}
	}

	if err := validateSchema(r.updateSchema, merged); err != nil {
		return err
	}

	var body map[string]any
	if err := json.Unmarshal(merged, &body); err != nil {
		return Error422UnprocessableEntity("patched document must be a JSON object")
	}
	delete(body, r.key)

	values, err := Resolve(body, r.fields)
	if err != nil {
		return err
	}

	return Update(c, r.model, UpdateOptions{
		Where:  where,
		Values: values,
	})
}

func (r *Resource) destroy(c *gin.Context) error {
	return Destroy(c, r.model, DestroyOptions{Where: r.whereKey(c)})
}

func (r *Resource) whereKey(c *gin.Context) map[string]any {
	return map[string]any{r.key: c.Param(r.key)}
}

// resolveBody reads the request body, gates it against an optional JSON
// Schema, and runs it through the resource's field rules. The body is
// restored so later handlers can still read it.
func (r *Resource) resolveBody(c *gin.Context, schema *gojsonschema.Schema) (map[string]any, error) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(data))

	body := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := validateSchema(schema, data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, Error400BadRequest("request body must be a JSON object")
		}
	}

	return Resolve(body, r.fields)
}

func validateSchema(schema *gojsonschema.Schema, document []byte) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return Error400BadRequest(fmt.Sprintf("invalid request body: %s", err))
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return Error422UnprocessableEntity("invalid request body: " + strings.Join(problems, "; "))
}

func compileSchema(document any) *gojsonschema.Schema {
	var loader gojsonschema.JSONLoader
	switch doc := document.(type) {
	case string:
		loader = gojsonschema.NewStringLoader(doc)
	default:
		loader = gojsonschema.NewGoLoader(doc)
	}

	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		panic(fmt.Errorf("invalid body schema: %w", err))
	}
	return schema
}

func parseFilter(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}

	parsed, err := gabs.ParseJSON([]byte(raw))
	if err != nil {
		return nil, Error400BadRequest("filter must be a JSON object")
	}
	if _, ok := parsed.Data().(map[string]any); !ok {
		return nil, Error400BadRequest("filter must be a JSON object")
	}

	children := parsed.ChildrenMap()
	if len(children) == 0 {
		return nil, nil
	}

	where := make(map[string]any, len(children))
	for name, child := range children {
		where[name] = child.Data()
	}
	return where, nil
}

func lastSegment(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	return parts[len(parts)-1]
}
