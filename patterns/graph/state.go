package graph

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/anshlambagit/agentgraph/providers/ai"
)

// State is the shared data a graph threads through its nodes. Nodes receive a
// snapshot of the current state and return partial updates; the engine merges
// each update through the channel reducers declared in the Schema.
//
// Values survive checkpoint round-trips as their JSON representations, so
// numbers read back from a restored thread are float64 regardless of how they
// were written. Use [Get] or [GetOr] instead of raw type assertions to stay
// insensitive to that.
type State map[string]any

// Clone returns a shallow copy of the state. Top-level keys are independent;
// nested values are shared.
func (state State) Clone() State {
	if state == nil {
		return nil
	}
	stateCopy := make(State, len(state))
	for key, value := range state {
		stateCopy[key] = value
	}
	return stateCopy
}

// Get retrieves the value under key as type T. The second return reports
// whether the key exists and holds a usable value. Numeric values convert
// between numeric types, so Get[int] works on a float64 that a checkpoint
// load produced.
//
// Example:
//
//	count, ok := graph.Get[int](state, "count")
//	messages, ok := graph.Get[[]ai.Message](state, "messages")
func Get[T any](state State, key string) (T, bool) {
	var zero T

	raw, exists := state[key]
	if !exists || raw == nil {
		return zero, false
	}

	if typed, ok := raw.(T); ok {
		return typed, true
	}

	converted, ok := convertNumeric(raw, reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	return converted.(T), true
}

// GetOr retrieves the value under key as type T, falling back to the given
// default when the key is absent or holds an incompatible value.
func GetOr[T any](state State, key string, fallback T) T {
	value, ok := Get[T](state, key)
	if !ok {
		return fallback
	}
	return value
}

// convertNumeric converts raw to the target type when both sides are numeric
// kinds. JSON decoding stores every number as float64, so this is what makes
// restored states transparent to typed access.
func convertNumeric(raw any, target reflect.Type) (any, bool) {
	sourceValue := reflect.ValueOf(raw)
	if !isNumericKind(sourceValue.Kind()) || !isNumericKind(target.Kind()) {
		return nil, false
	}
	if !sourceValue.Type().ConvertibleTo(target) {
		return nil, false
	}
	return sourceValue.Convert(target).Interface(), true
}

func isNumericKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// --- Channels ---

// channelKind identifies the built-in reducer behaviors. The engine needs to
// recognize message channels when it rehydrates a checkpointed state.
type channelKind int

const (
	kindLastValue channelKind = iota
	kindAppend
	kindAddMessages
	kindCustom
)

// Channel declares how updates to one state key are merged into the current
// value. A Schema maps state keys to channels; keys without a channel behave
// as [LastValue].
type Channel struct {
	kind    channelKind
	reducer func(current, update any) (any, error)
}

// Schema declares the reducers of a graph's state, keyed by state key.
//
// Example:
//
//	schema := graph.Schema{
//	    "topic":    graph.LastValue(),
//	    "sections": graph.Append(),
//	    "messages": graph.AddMessages(),
//	}
type Schema map[string]Channel

// LastValue returns a channel where each update replaces the current value.
// This is the default behavior for keys missing from the schema.
func LastValue() Channel {
	return Channel{
		kind: kindLastValue,
		reducer: func(_, update any) (any, error) {
			return update, nil
		},
	}
}

// Append returns a channel that accumulates updates into a slice. An update
// may be a single element or a slice of elements; either way the elements are
// appended to the current slice. Writing to an empty channel starts a slice
// of the update's element type.
//
// Parallel nodes writing to the same Append channel all land; the engine
// applies their updates in deterministic task order.
func Append() Channel {
	return Channel{
		kind:    kindAppend,
		reducer: reduceAppend,
	}
}

// AddMessages returns a channel that accumulates chat messages. Updates may
// be a single [ai.Message], a pointer to one, or a slice of messages. An
// update whose Id matches an existing message replaces that message in place
// instead of appending, so nodes can amend earlier turns.
//
// The channel tolerates the generic map form messages take after a checkpoint
// load and rehydrates them into typed [ai.Message] values.
func AddMessages() Channel {
	return Channel{
		kind:    kindAddMessages,
		reducer: reduceMessages,
	}
}

// ReduceWith returns a channel with a caller-supplied reducer. The reducer
// receives the current value (nil when the key is unset) and the incoming
// update; its return becomes the new value.
//
// Example:
//
//	"max_score": graph.ReduceWith(func(current, update any) any {
//	    cur, _ := current.(float64)
//	    upd, _ := update.(float64)
//	    return math.Max(cur, upd)
//	})
func ReduceWith(reduce func(current, update any) any) Channel {
	return Channel{
		kind: kindCustom,
		reducer: func(current, update any) (any, error) {
			return reduce(current, update), nil
		},
	}
}

// channelFor resolves the channel for a state key, defaulting to LastValue
// for undeclared keys.
func (schema Schema) channelFor(key string) Channel {
	if schema != nil {
		if channel, declared := schema[key]; declared && channel.reducer != nil {
			return channel
		}
	}
	return LastValue()
}

// apply merges a partial update into state, key by key, through the schema's
// reducers. The state map is mutated in place.
func (schema Schema) apply(state State, update State) error {
	for key, incoming := range update {
		channel := schema.channelFor(key)
		merged, err := channel.reducer(state[key], incoming)
		if err != nil {
			return fmt.Errorf("reduce %q: %w", key, err)
		}
		state[key] = merged
	}
	return nil
}

// rehydrate restores typed values that JSON serialization flattened. Message
// channels come back as []any of map[string]any after a checkpoint load; they
// are converted to []ai.Message so nodes and typed accessors see the same
// shape a live run produces.
func (schema Schema) rehydrate(state State) error {
	for key, channel := range schema {
		if channel.kind != kindAddMessages {
			continue
		}
		raw, exists := state[key]
		if !exists || raw == nil {
			continue
		}
		messages, err := coerceMessages(raw)
		if err != nil {
			return fmt.Errorf("rehydrate %q: %w", key, err)
		}
		state[key] = messages
	}
	return nil
}

// --- Reducers ---

func reduceAppend(current, update any) (any, error) {
	if update == nil {
		return current, nil
	}

	updateValue := reflect.ValueOf(update)

	if current == nil {
		if updateValue.Kind() == reflect.Slice {
			fresh := reflect.MakeSlice(updateValue.Type(), 0, updateValue.Len())
			return reflect.AppendSlice(fresh, updateValue).Interface(), nil
		}
		fresh := reflect.MakeSlice(reflect.SliceOf(updateValue.Type()), 0, 1)
		return reflect.Append(fresh, updateValue).Interface(), nil
	}

	currentValue := reflect.ValueOf(current)
	if currentValue.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append channel holds %T, not a slice", current)
	}

	elementType := currentValue.Type().Elem()

	// Same slice type: concatenate directly.
	if updateValue.Kind() == reflect.Slice && updateValue.Type() == currentValue.Type() {
		combined := reflect.MakeSlice(currentValue.Type(), 0, currentValue.Len()+updateValue.Len())
		combined = reflect.AppendSlice(combined, currentValue)
		return reflect.AppendSlice(combined, updateValue).Interface(), nil
	}

	// Single element assignable to the current element type.
	if updateValue.Kind() != reflect.Slice && updateValue.Type().AssignableTo(elementType) {
		combined := reflect.MakeSlice(currentValue.Type(), 0, currentValue.Len()+1)
		combined = reflect.AppendSlice(combined, currentValue)
		return reflect.Append(combined, updateValue).Interface(), nil
	}

	// Mixed shapes, typically after a checkpoint load turned the stored
	// slice into []any. Fall back to a generic slice.
	combined := make([]any, 0, currentValue.Len()+1)
	for i := 0; i < currentValue.Len(); i++ {
		combined = append(combined, currentValue.Index(i).Interface())
	}
	if updateValue.Kind() == reflect.Slice {
		for i := 0; i < updateValue.Len(); i++ {
			combined = append(combined, updateValue.Index(i).Interface())
		}
		return combined, nil
	}
	return append(combined, update), nil
}

func reduceMessages(current, update any) (any, error) {
	existing, err := coerceMessages(current)
	if err != nil {
		return nil, err
	}
	incoming, err := coerceMessages(update)
	if err != nil {
		return nil, err
	}

	merged := make([]ai.Message, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	for _, message := range incoming {
		replaced := false
		if message.Id != "" {
			for i := range merged {
				if merged[i].Id == message.Id {
					merged[i] = message
					replaced = true
					break
				}
			}
		}
		if !replaced {
			merged = append(merged, message)
		}
	}

	return merged, nil
}

// coerceMessages normalizes the shapes a message channel can encounter into
// []ai.Message: nil, a single message or pointer, a typed slice, or the
// []any / map[string]any forms JSON deserialization produces.
func coerceMessages(raw any) ([]ai.Message, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case ai.Message:
		return []ai.Message{value}, nil
	case *ai.Message:
		if value == nil {
			return nil, nil
		}
		return []ai.Message{*value}, nil
	case []ai.Message:
		return value, nil
	case []*ai.Message:
		messages := make([]ai.Message, 0, len(value))
		for _, message := range value {
			if message != nil {
				messages = append(messages, *message)
			}
		}
		return messages, nil
	case map[string]any, []any:
		return messagesFromJSON(value)
	default:
		return nil, fmt.Errorf("cannot use %T as chat messages", raw)
	}
}

// messagesFromJSON round-trips generic JSON values into typed messages.
func messagesFromJSON(raw any) ([]ai.Message, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}

	if _, isObject := raw.(map[string]any); isObject {
		var message ai.Message
		if err := json.Unmarshal(encoded, &message); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		return []ai.Message{message}, nil
	}

	var messages []ai.Message
	if err := json.Unmarshal(encoded, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}
