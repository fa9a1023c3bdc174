package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used when the recorder fails.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithEnabledActions restricts recording to the listed actions.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) { e.filter.only = set(actions) }
}

// WithDisabledActions skips the listed actions.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.filter.skip == nil {
			e.filter.skip = map[string]struct{}{}
		}
		for _, a := range actions {
			e.filter.skip[a] = struct{}{}
		}
	}
}

// WithCategories restricts recording to events of the listed categories.
func WithCategories(categories ...string) Option {
	return func(e *Extension) { e.filter.categories = set(categories) }
}

// WithMinSeverity drops events below severity. Unknown severities are
// treated as info.
func WithMinSeverity(severity string) Option {
	return func(e *Extension) { e.filter.minSeverity = severityRank(severity) }
}

// filter decides which audit events reach the recorder. The zero value
// records everything.
type filter struct {
	only        map[string]struct{}
	skip        map[string]struct{}
	categories  map[string]struct{}
	minSeverity int
}

func (f filter) allows(action, category, severity string) bool {
	if f.only != nil {
		if _, ok := f.only[action]; !ok {
			return false
		}
	}
	if _, ok := f.skip[action]; ok {
		return false
	}
	if f.categories != nil {
		if _, ok := f.categories[category]; !ok {
			return false
		}
	}
	return severityRank(severity) >= f.minSeverity
}

func severityRank(s string) int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

func set(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
