package controller

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/armchr/graphogm/internal/cypher"
	"github.com/armchr/graphogm/internal/filter"
	"github.com/armchr/graphogm/internal/model"
	"github.com/armchr/graphogm/internal/ogm"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GraphController serves read-only JSON views of the registered types and
// the nodes stored for them.
type GraphController struct {
	mapper *ogm.Mapper
	logger *zap.Logger
}

func NewGraphController(mapper *ogm.Mapper, logger *zap.Logger) *GraphController {
	return &GraphController{mapper: mapper, logger: logger}
}

// Query parameters with a meaning of their own. Every other parameter of a
// list request is a filter lookup ("name__icontains=ada").
var reserved = map[string]bool{
	"limit":     true,
	"skip":      true,
	"order_by":  true,
	"desc":      true,
	"distinct":  true,
	"only":      true,
	"explain":   true,
	"direction": true,
	"returned":  true,
}

// -----------------------------------------------------------------------------
// Models
// -----------------------------------------------------------------------------

func (c *GraphController) ListModels(ctx *gin.Context) {
	types := c.mapper.Registry().Types()
	models := make([]model.ModelInfo, len(types))
	for i, t := range types {
		models[i] = model.DescribeModel(t)
	}
	ctx.JSON(http.StatusOK, model.ListModelsResponse{Models: models, Count: len(models)})
}

func (c *GraphController) GetModel(ctx *gin.Context) {
	t, ok := c.nodeType(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, model.DescribeModel(t))
}

// -----------------------------------------------------------------------------
// Nodes
// -----------------------------------------------------------------------------

// ListNodes returns the nodes of a type. With only=a,b it returns
// projection rows; with explain=true it returns the query instead.
func (c *GraphController) ListNodes(ctx *gin.Context) {
	t, ok := c.nodeType(ctx)
	if !ok {
		return
	}
	opts, err := c.getOptions(ctx)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	if explain(ctx) {
		q, err := c.mapper.Query(t, opts)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, queryResponse(q))
		return
	}

	if len(opts.Only) > 0 {
		rows, err := c.mapper.Project(ctx.Request.Context(), t, opts)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, model.ProjectionResponse{Type: t.Name(), Rows: serializeRows(rows)})
		return
	}

	nodes, err := c.mapper.Find(ctx.Request.Context(), t, opts)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, model.ListNodesResponse{Type: t.Name(), Nodes: nonNil(nodes), Count: len(nodes)})
}

func (c *GraphController) CountNodes(ctx *gin.Context) {
	t, ok := c.nodeType(ctx)
	if !ok {
		return
	}
	opts, err := c.getOptions(ctx)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	n, err := c.mapper.Count(ctx.Request.Context(), t, opts)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, model.CountResponse{Type: t.Name(), Count: n})
}

func (c *GraphController) GetNode(ctx *gin.Context) {
	t, ok := c.nodeType(ctx)
	if !ok {
		return
	}
	n, err := c.mapper.FindOne(ctx.Request.Context(), t, ctx.Param("uuid"))
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, n)
}

// -----------------------------------------------------------------------------
// Relationships
// -----------------------------------------------------------------------------

func (c *GraphController) ListRelated(ctx *gin.Context) {
	set, opts, ok := c.relationship(ctx)
	if !ok {
		return
	}

	if explain(ctx) {
		q, err := set.Query(opts)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, queryResponse(q))
		return
	}

	results, err := set.Get(ctx.Request.Context(), opts)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	rows := make([]model.RelationshipRow, len(results))
	for i, res := range results {
		rows[i] = model.RelationshipRow{Node: res.Node, Relationship: res.Relationship}
	}
	ctx.JSON(http.StatusOK, model.ListRelatedResponse{
		Type:         ctx.Param("type"),
		UUID:         ctx.Param("uuid"),
		Relationship: ctx.Param("name"),
		Results:      rows,
		Count:        len(rows),
	})
}

func (c *GraphController) CountRelated(ctx *gin.Context) {
	set, opts, ok := c.relationship(ctx)
	if !ok {
		return
	}
	n, err := set.Count(ctx.Request.Context(), opts)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, model.CountResponse{Type: set.Descriptor().Type(), Count: n})
}

// relationship loads the node named by the path and binds the accessor.
// It writes the error response itself when it returns false.
func (c *GraphController) relationship(ctx *gin.Context) (*ogm.RelationshipSet, ogm.RelGetOptions, bool) {
	t, ok := c.nodeType(ctx)
	if !ok {
		return nil, ogm.RelGetOptions{}, false
	}
	if _, declared := t.Relationship(ctx.Param("name")); !declared {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown relationship " + t.Name() + "." + ctx.Param("name")})
		return nil, ogm.RelGetOptions{}, false
	}

	base, err := c.getOptions(ctx)
	if err != nil {
		c.fail(ctx, err)
		return nil, ogm.RelGetOptions{}, false
	}
	opts := ogm.RelGetOptions{
		Filter:   base.Filter,
		OrderBy:  base.OrderBy,
		Desc:     base.Desc,
		Skip:     base.Skip,
		Limit:    base.Limit,
		Distinct: base.Distinct,
	}
	if opts.Direction, err = ogm.ParseDirection(ctx.Query("direction")); err != nil {
		c.fail(ctx, err)
		return nil, ogm.RelGetOptions{}, false
	}
	if opts.Returned, err = ogm.ParseReturned(ctx.Query("returned")); err != nil {
		c.fail(ctx, err)
		return nil, ogm.RelGetOptions{}, false
	}

	n, err := c.mapper.FindOne(ctx.Request.Context(), t, ctx.Param("uuid"))
	if err != nil {
		c.fail(ctx, err)
		return nil, ogm.RelGetOptions{}, false
	}
	set, err := n.Rel(ctx.Param("name"))
	if err != nil {
		c.fail(ctx, err)
		return nil, ogm.RelGetOptions{}, false
	}
	return set, opts, true
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (c *GraphController) nodeType(ctx *gin.Context) (*ogm.NodeType, bool) {
	t, err := c.mapper.Type(ctx.Param("type"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return t, true
}

func (c *GraphController) getOptions(ctx *gin.Context) (ogm.GetOptions, error) {
	limit, skip, desc, err := ogm.ParseWindow(ctx.Query("limit"), ctx.Query("skip"), ctx.Query("desc"))
	if err != nil {
		return ogm.GetOptions{}, err
	}
	opts := ogm.GetOptions{
		OrderBy:  ctx.Query("order_by"),
		Desc:     desc,
		Skip:     skip,
		Limit:    limit,
		Distinct: ctx.Query("distinct") == "true",
	}
	if only := ctx.Query("only"); only != "" {
		opts.Only = strings.Split(only, ",")
	}

	query := ctx.Request.URL.Query()
	keys := make([]string, 0, len(query))
	for key, values := range query {
		if !reserved[key] && len(values) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	exprs := make([]filter.Expr, len(keys))
	for i, key := range keys {
		exprs[i] = queryFilter(key, query.Get(key))
	}
	opts.Filter = filter.And(exprs...)
	return opts, nil
}

// Lookups that only make sense against text keep the raw query value.
var textLookups = map[string]bool{
	filter.IExact:      true,
	filter.Contains:    true,
	filter.IContains:   true,
	filter.StartsWith:  true,
	filter.IStartsWith: true,
	filter.EndsWith:    true,
	filter.IEndsWith:   true,
	filter.Regex:       true,
	filter.IRegex:      true,
}

// queryFilter builds the lookup for one query parameter. Properties carry
// no declared value type, so the lookup decides: text lookups take the raw
// string, a double-quoted value is always text, and an equality on a
// numeric-looking value matches the number or the same digits stored as
// text.
func queryFilter(key, raw string) filter.Expr {
	_, op, _ := strings.Cut(key, "__")
	if textLookups[op] {
		return filter.Q(key, raw)
	}
	if len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) {
		return filter.Q(key, raw[1:len(raw)-1])
	}
	typed := queryValue(raw)
	_, numeric := typed.(int64)
	if _, ok := typed.(float64); ok {
		numeric = true
	}
	if numeric && (op == "" || op == filter.Exact) {
		return filter.Or(filter.Q(key, typed), filter.Q(key, raw))
	}
	return filter.Q(key, typed)
}

// queryValue types a query string value: integers, floats and booleans are
// converted, anything else stays text.
func queryValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

func explain(ctx *gin.Context) bool {
	return ctx.Query("explain") == "true"
}

func queryResponse(q cypher.Query) model.QueryResponse {
	return model.QueryResponse{Query: q.Text, Params: ogm.Serialize(q.Params), Inline: q.Inline()}
}

func serializeRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = ogm.Serialize(row)
	}
	return out
}

func nonNil(nodes []*ogm.Node) []*ogm.Node {
	if nodes == nil {
		return []*ogm.Node{}
	}
	return nodes
}

// fail maps mapper errors onto HTTP statuses.
func (c *GraphController) fail(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ogm.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ogm.ErrNode), errors.Is(err, ogm.ErrRelationship),
		errors.Is(err, ogm.ErrProperty), errors.Is(err, filter.ErrFilter):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		c.logger.Error("Request failed", zap.String("path", ctx.Request.URL.Path), zap.Error(err))
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
