package goal

import (
	"strings"
	"time"
)

// SortOrder defines how results should be ordered when listing goals.
type SortOrder int

const (
	// SortByUpdatedDesc orders goals by UpdatedAt descending (most recent first).
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc orders goals by UpdatedAt ascending (oldest first).
	SortByUpdatedAsc
)

// ListOptions controls how goals are selected when querying the store.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	AgentTypes []string
	UpdatedGTE int64
	UpdatedLTE int64
	HasReport  *bool
	Order      SortOrder
	Query      string
}

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Statuses != nil {
		opts.Statuses = normalizeStatuses(opts.Statuses)
	}
	if opts.AgentTypes != nil {
		opts.AgentTypes = normalizeAgentTypes(opts.AgentTypes)
	}
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of goals returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching goals before returning results.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithStatuses filters goals by the provided statuses.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithAgentTypes filters goals by the agent type they are routed to.
func WithAgentTypes(agentTypes ...string) ListOption {
	return func(opts *ListOptions) {
		opts.AgentTypes = append(opts.AgentTypes[:0], agentTypes...)
	}
}

// WithUpdatedSince filters goals updated after the provided instant (inclusive).
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UpdatedGTE = 0
			return
		}
		opts.UpdatedGTE = ts.Unix()
	}
}

// WithUpdatedUntil filters goals updated before the provided instant (inclusive).
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UpdatedLTE = 0
			return
		}
		opts.UpdatedLTE = ts.Unix()
	}
}

// WithReportPresence filters goals by whether they already contain a run report.
func WithReportPresence(hasReport bool) ListOption {
	return func(opts *ListOptions) {
		opts.HasReport = new(bool)
		*opts.HasReport = hasReport
	}
}

// WithSortOrder changes the returned order of goals.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// WithQuery filters goals by fuzzy matching across description, source and report fields.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) {
		opts.Query = query
	}
}

// buildListOptions applies option functions on top of defaults.
func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func normalizeAgentTypes(input []string) []string {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(input))
	result := make([]string, 0, len(input))
	for _, agentType := range input {
		agentType = strings.TrimSpace(agentType)
		if agentType == "" {
			continue
		}
		if _, ok := seen[agentType]; ok {
			continue
		}
		seen[agentType] = struct{}{}
		result = append(result, agentType)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
