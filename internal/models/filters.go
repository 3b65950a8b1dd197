package models

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pagination defaults. The maximum page size is configurable process-wide;
// DefaultPageSizeMax applies when no override is configured.
const (
	DefaultPage        = 1
	DefaultPageSize    = 20
	DefaultPageSizeMax = 100
)

// Pagination holds validated page/page_size parameters.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ParsePagination parses and validates page and page_size query parameters.
// page must be >= 1 and page_size in [1, maxPageSize].
func ParsePagination(params url.Values, maxPageSize int) (Pagination, error) {
	if maxPageSize <= 0 {
		maxPageSize = DefaultPageSizeMax
	}

	p := Pagination{Page: DefaultPage, PageSize: DefaultPageSize}

	if raw := params.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return p, fmt.Errorf("invalid page %q: must be an integer >= 1", raw)
		}
		p.Page = page
	}

	if raw := params.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > maxPageSize {
			return p, fmt.Errorf("invalid page_size %q: must be in [1, %d]", raw, maxPageSize)
		}
		p.PageSize = size
	}

	return p, nil
}

// EntityFilter holds query parameters for entity list operations.
// Search is a case-insensitive substring match against name+description;
// Tags matches entities whose tag set intersects the query set.
type EntityFilter struct {
	Type         string `json:"type,omitempty"`
	Category     string `json:"category,omitempty"`
	Status       string `json:"status,omitempty"`
	HealthStatus string `json:"health_status,omitempty"`
	Search       string `json:"search,omitempty"`

	Tags []string `json:"tags,omitempty"`

	Pagination
}

// ParseEntityFilter parses entity list query parameters.
func ParseEntityFilter(params url.Values, maxPageSize int) (*EntityFilter, error) {
	page, err := ParsePagination(params, maxPageSize)
	if err != nil {
		return nil, err
	}

	f := &EntityFilter{
		Type:         params.Get("type"),
		Category:     params.Get("category"),
		Status:       params.Get("status"),
		HealthStatus: params.Get("health_status"),
		Search:       params.Get("search"),
		Pagination:   page,
	}

	if tags := params["tags"]; len(tags) > 0 {
		f.Tags = tags
	}

	return f, nil
}

// DeploymentFilter holds query parameters for deployment list operations.
type DeploymentFilter struct {
	EntityID    string `json:"entity_id,omitempty"`
	Environment string `json:"environment,omitempty"`
	Status      string `json:"status,omitempty"`

	Pagination
}

// ParseDeploymentFilter parses deployment list query parameters.
func ParseDeploymentFilter(params url.Values, maxPageSize int) (*DeploymentFilter, error) {
	page, err := ParsePagination(params, maxPageSize)
	if err != nil {
		return nil, err
	}

	return &DeploymentFilter{
		EntityID:    params.Get("entity_id"),
		Environment: params.Get("environment"),
		Status:      params.Get("status"),
		Pagination:  page,
	}, nil
}

// SwapFilter holds query parameters for swap list operations. EntityID
// matches swaps with the entity on either side; it is set by the
// per-entity route rather than parsed from the query string, so the
// store can paginate the combined set in one pass.
type SwapFilter struct {
	FromEntityID string `json:"from_entity_id,omitempty"`
	ToEntityID   string `json:"to_entity_id,omitempty"`
	EntityID     string `json:"-"`
	Status       string `json:"status,omitempty"`

	Pagination
}

// ParseSwapFilter parses swap list query parameters.
func ParseSwapFilter(params url.Values, maxPageSize int) (*SwapFilter, error) {
	page, err := ParsePagination(params, maxPageSize)
	if err != nil {
		return nil, err
	}

	return &SwapFilter{
		FromEntityID: params.Get("from_entity_id"),
		ToEntityID:   params.Get("to_entity_id"),
		Status:       params.Get("status"),
		Pagination:   page,
	}, nil
}
