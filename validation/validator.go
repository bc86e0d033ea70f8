// Package validation runs rule based validation with lifecycle events.
//
// A Validator holds the rules and messages for one kind of input. Calling
// With hands them to a Factory, after giving the owner and any event
// listeners a chance to adjust them for the active scenario:
//
//	type UserValidator struct {
//		*validation.Validator
//	}
//
//	func (u *UserValidator) OnCreate() {
//		u.Rules["password"] = []string{"required", "min:8"}
//	}
//
//	u := &UserValidator{}
//	u.Validator = validation.New(factory, events,
//		validation.WithOwner(u),
//		validation.WithRules(map[string][]string{"email": {"required", "email"}}),
//	)
//	result, err := u.On("create").With(input, "user.validating")
package validation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"reflect"

	"github.com/orchestral/support/str"
)

// ErrInvalidArgument is returned when an event callback cannot be called
// with the recorded parameters.
var ErrInvalidArgument = errors.New("validation: invalid argument")

// Validation is the outcome produced by a Factory.
type Validation interface {
	Fails() bool
	Errors() map[string][]string
}

// Factory builds a Validation for data.
type Factory interface {
	Make(data map[string]any, rules map[string][]string, messages map[string]string) (Validation, error)
}

// Dispatcher fires named events.
type Dispatcher interface {
	Fire(event string, payload any) error
}

// Validator holds rules and messages and runs them through a Factory.
type Validator struct {
	Rules    map[string][]string
	Messages map[string]string

	factory Factory
	events  Dispatcher
	owner   any
	logger  *slog.Logger

	event      string
	parameters []any
	bindings   map[string]string
}

// Option configures a Validator.
type Option func(*Validator)

// WithOwner sets the value whose On<Event> methods are called by With.
// It is usually the struct embedding the Validator.
func WithOwner(owner any) Option {
	return func(v *Validator) {
		v.owner = owner
	}
}

// WithRules sets the rules, keyed by field name.
func WithRules(rules map[string][]string) Option {
	return func(v *Validator) {
		v.Rules = rules
	}
}

// WithMessages sets custom error messages, keyed by "field.rule".
func WithMessages(messages map[string]string) Option {
	return func(v *Validator) {
		v.Messages = messages
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates a Validator. events may be nil when no events are fired.
func New(factory Factory, events Dispatcher, options ...Option) *Validator {
	v := &Validator{
		Rules:    map[string][]string{},
		Messages: map[string]string{},
		factory:  factory,
		events:   events,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		opt(v)
	}
	if v.Rules == nil {
		v.Rules = map[string][]string{}
	}
	return v
}

// On selects the scenario. With calls the owner's On<Event> method, where
// <Event> is the studly form of event ("create" calls OnCreate), passing
// parameters.
func (v *Validator) On(event string, parameters ...any) *Validator {
	v.event = event
	v.parameters = parameters
	return v
}

// Event returns the scenario selected with On.
func (v *Validator) Event() string {
	return v.event
}

// Bind sets placeholder values substituted into every rule, so a rule
// "unique:users,email,{id}" can refer to the record being updated.
func (v *Validator) Bind(bindings map[string]string) *Validator {
	v.bindings = maps.Clone(bindings)
	return v
}

// With validates data. The scenario callback runs first, then every event
// is fired with the Validator as payload, and finally the bound rules are
// passed to the Factory.
func (v *Validator) With(data map[string]any, events ...string) (Validation, error) {
	if err := v.runCallback(); err != nil {
		return nil, err
	}

	for _, event := range events {
		if v.events == nil {
			return nil, fmt.Errorf("validation: no dispatcher for event %q", event)
		}
		v.logger.Debug("firing validation event", "event", event)
		if err := v.events.Fire(event, v); err != nil {
			return nil, fmt.Errorf("validation: event %q: %w", event, err)
		}
	}

	if v.factory == nil {
		return nil, errors.New("validation: no factory configured")
	}
	return v.factory.Make(data, v.boundRules(), v.Messages)
}

func (v *Validator) boundRules() map[string][]string {
	rules := make(map[string][]string, len(v.Rules))
	for field, rule := range v.Rules {
		if len(v.bindings) == 0 {
			rules[field] = append([]string(nil), rule...)
			continue
		}
		rules[field] = str.ReplaceEach(rule, v.bindings)
	}
	return rules
}

var errorType = reflect.TypeFor[error]()

func (v *Validator) runCallback() error {
	if v.event == "" || v.owner == nil {
		return nil
	}

	name := "On" + str.Studly(v.event)
	method := reflect.ValueOf(v.owner).MethodByName(name)
	if !method.IsValid() {
		return nil
	}

	t := method.Type()
	if t.IsVariadic() || t.NumIn() != len(v.parameters) {
		return fmt.Errorf("%w: %s takes %d parameters, got %d", ErrInvalidArgument, name, t.NumIn(), len(v.parameters))
	}

	in := make([]reflect.Value, len(v.parameters))
	for i, p := range v.parameters {
		want := t.In(i)
		if p == nil {
			switch want.Kind() {
			case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
				in[i] = reflect.Zero(want)
				continue
			}
			return fmt.Errorf("%w: %s parameter %d cannot be nil", ErrInvalidArgument, name, i)
		}
		pv := reflect.ValueOf(p)
		if !pv.Type().AssignableTo(want) {
			return fmt.Errorf("%w: %s parameter %d is %s, want %s", ErrInvalidArgument, name, i, pv.Type(), want)
		}
		in[i] = pv
	}

	v.logger.Debug("running validation callback", "method", name)
	for _, out := range method.Call(in) {
		if out.Type() == errorType && !out.IsNil() {
			return out.Interface().(error)
		}
	}
	return nil
}
