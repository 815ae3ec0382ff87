package demo

import (
	"go.opentelemetry.io/otel/trace"
)

type ParserOptions struct {
	wantedPlayerProps []string
	wantedProps       []string
	aliases           map[string]string
	wantedTicks       map[int32]bool
	wantedEvent       string

	skipEntities bool
	projectiles  bool
	headerOnly   bool
	countProps   bool
	strictSchema bool

	metrics *Metrics
	tracer  trace.Tracer
}

type ParserOption func(*ParserOptions)

// WithWantedPlayerProps collects props of player pawns and controllers. Rows
// carry the owning player's steam id.
func WithWantedPlayerProps(names ...string) ParserOption {
	return func(o *ParserOptions) {
		o.wantedPlayerProps = append(o.wantedPlayerProps, names...)
	}
}

// WithWantedProps collects props of any entity. A name matches either the
// full property name or the name without its class prefix.
func WithWantedProps(names ...string) ParserOption {
	return func(o *ParserOptions) {
		o.wantedProps = append(o.wantedProps, names...)
	}
}

// WithPropAlias stores the column of a wanted prop under alias.
func WithPropAlias(name, alias string) ParserOption {
	return func(o *ParserOptions) {
		if o.aliases == nil {
			o.aliases = make(map[string]string)
		}
		o.aliases[name] = alias
	}
}

// WithWantedTicks restricts rows, events and projectile samples to ticks.
func WithWantedTicks(ticks ...int32) ParserOption {
	return func(o *ParserOptions) {
		if o.wantedTicks == nil {
			o.wantedTicks = make(map[int32]bool)
		}
		for _, t := range ticks {
			o.wantedTicks[t] = true
		}
	}
}

// WithWantedEvent decodes game events named name. "all" decodes every event.
func WithWantedEvent(name string) ParserOption {
	return func(o *ParserOptions) { o.wantedEvent = name }
}

// WithoutEntities skips send tables, class info and entity messages.
func WithoutEntities() ParserOption {
	return func(o *ParserOptions) { o.skipEntities = true }
}

func WithProjectiles() ParserOption {
	return func(o *ParserOptions) { o.projectiles = true }
}

// WithHeaderOnly stops after the file header.
func WithHeaderOnly() ParserOption {
	return func(o *ParserOptions) { o.headerOnly = true }
}

// WithCountProps counts the updates of every property by name.
func WithCountProps() ParserOption {
	return func(o *ParserOptions) { o.countProps = true }
}

// WithStrictSchema makes schema and entity data errors fatal instead of
// skipping the affected entity message.
func WithStrictSchema() ParserOption {
	return func(o *ParserOptions) { o.strictSchema = true }
}

func WithMetrics(m *Metrics) ParserOption {
	return func(o *ParserOptions) { o.metrics = m }
}

func WithTracer(t trace.Tracer) ParserOption {
	return func(o *ParserOptions) { o.tracer = t }
}

func (o *ParserOptions) tickWanted(tick int32) bool {
	return len(o.wantedTicks) == 0 || o.wantedTicks[tick]
}

func (o *ParserOptions) eventWanted(name string) bool {
	return o.wantedEvent != "" && (o.wantedEvent == "all" || o.wantedEvent == name)
}
