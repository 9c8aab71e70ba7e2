package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

var (
	// ErrKindRequired indicates a missing command kind.
	ErrKindRequired = errors.New("command kind is required")
	// ErrKindUnknown indicates an unregistered command kind.
	ErrKindUnknown = errors.New("command kind is not registered")
	// ErrNotKinded indicates a command that cannot name its kind.
	ErrNotKinded = errors.New("command does not implement Kinded")
)

// Envelope is the encoded form of one command.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Codec encodes and decodes one command kind. Decode receives the registry so
// composite kinds can decode their children.
type Codec struct {
	Kind   Kind
	Encode func(r *Registry, cmd Command) (json.RawMessage, error)
	Decode func(r *Registry, payload json.RawMessage) (Command, error)
}

// Registry maps command kinds to codecs. It is built once at startup and
// passed to whatever needs to persist or transmit commands.
type Registry struct {
	codecs map[Kind]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[Kind]Codec)}
}

// NewBuiltinRegistry creates a registry holding the built-in kinds.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
}

// Register adds a codec.
func (r *Registry) Register(codec Codec) error {
	if r == nil {
		return errors.New("registry is required")
	}
	codec.Kind = Kind(strings.TrimSpace(string(codec.Kind)))
	if codec.Kind == "" {
		return ErrKindRequired
	}
	if codec.Encode == nil || codec.Decode == nil {
		return fmt.Errorf("codec %s requires encode and decode", codec.Kind)
	}
	if r.codecs == nil {
		r.codecs = make(map[Kind]Codec)
	}
	if _, exists := r.codecs[codec.Kind]; exists {
		return fmt.Errorf("command kind already registered: %s", codec.Kind)
	}
	r.codecs[codec.Kind] = codec
	return nil
}

// Kinds returns registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	if r == nil {
		return nil
	}
	kinds := make([]Kind, 0, len(r.codecs))
	for kind := range r.codecs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Encode wraps cmd in an envelope.
func (r *Registry) Encode(cmd Command) (Envelope, error) {
	kinded, ok := cmd.(Kinded)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %T", ErrNotKinded, cmd)
	}
	codec, ok := r.codecs[kinded.Kind()]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %s", ErrKindUnknown, kinded.Kind())
	}
	payload, err := codec.Encode(r, cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", codec.Kind, err)
	}
	return Envelope{Kind: codec.Kind, Payload: payload}, nil
}

// Decode rebuilds a command from its envelope.
func (r *Registry) Decode(env Envelope) (Command, error) {
	kind := Kind(strings.TrimSpace(string(env.Kind)))
	if kind == "" {
		return nil, ErrKindRequired
	}
	codec, ok := r.codecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKindUnknown, kind)
	}
	cmd, err := codec.Decode(r, env.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return cmd, nil
}

// Marshal encodes cmd to JSON bytes.
func (r *Registry) Marshal(cmd Command) ([]byte, error) {
	env, err := r.Encode(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Unmarshal decodes JSON bytes produced by Marshal.
func (r *Registry) Unmarshal(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return r.Decode(env)
}

type setValuePayload struct {
	Object      object.ID       `json:"object"`
	Property    object.Property `json:"property"`
	Value       wireValue       `json:"value"`
	Previous    wireValue       `json:"previous"`
	HadPrevious bool            `json:"had_previous"`
}

type objectPayload struct {
	ID    object.ID                     `json:"id"`
	Kind  string                        `json:"kind"`
	Props map[object.Property]wireValue `json:"props,omitempty"`
}

type createPayload struct {
	Object       objectPayload `json:"object"`
	PreviousNext object.ID     `json:"previous_next"`
}

// destroyPayload also carries Reveal.
type destroyPayload struct {
	Object objectPayload `json:"object"`
}

type multiPayload struct {
	Commands []Envelope `json:"commands"`
}

// RegisterBuiltins registers the codecs for every command kind in this package.
func RegisterBuiltins(r *Registry) error {
	codecs := []Codec{
		{Kind: KindMulti, Encode: encodeMulti, Decode: decodeMulti},
		{Kind: KindSetValue, Encode: encodeSetValue, Decode: decodeSetValue},
		{Kind: KindCreate, Encode: encodeCreate, Decode: decodeCreate},
		{Kind: KindDestroy, Encode: encodeDestroy, Decode: decodeDestroy},
		{Kind: KindInverse, Encode: encodeInverse, Decode: decodeInverse},
		{Kind: KindReveal, Encode: encodeReveal, Decode: decodeReveal},
		{Kind: KindConceal, Encode: encodeConceal, Decode: decodeConceal},
	}
	for _, codec := range codecs {
		if err := r.Register(codec); err != nil {
			return err
		}
	}
	return nil
}

func encodeMulti(r *Registry, cmd Command) (json.RawMessage, error) {
	multi := cmd.(*Multi)
	payload := multiPayload{Commands: make([]Envelope, 0, len(multi.Commands))}
	for _, child := range multi.Commands {
		env, err := r.Encode(child)
		if err != nil {
			return nil, err
		}
		payload.Commands = append(payload.Commands, env)
	}
	return json.Marshal(payload)
}

func decodeMulti(r *Registry, raw json.RawMessage) (Command, error) {
	var payload multiPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	multi := &Multi{Commands: make([]Command, 0, len(payload.Commands))}
	for _, env := range payload.Commands {
		child, err := r.Decode(env)
		if err != nil {
			return nil, err
		}
		multi.Commands = append(multi.Commands, child)
	}
	return multi, nil
}

func encodeSetValue(_ *Registry, cmd Command) (json.RawMessage, error) {
	c := cmd.(*SetValue)
	value, err := encodeValue(c.Value)
	if err != nil {
		return nil, err
	}
	previous, err := encodeValue(c.Previous)
	if err != nil {
		return nil, err
	}
	return json.Marshal(setValuePayload{
		Object:      c.Object,
		Property:    c.Property,
		Value:       value,
		Previous:    previous,
		HadPrevious: c.HadPrevious,
	})
}

func decodeSetValue(_ *Registry, raw json.RawMessage) (Command, error) {
	var payload setValuePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	value, err := decodeValue(payload.Value)
	if err != nil {
		return nil, err
	}
	previous, err := decodeValue(payload.Previous)
	if err != nil {
		return nil, err
	}
	return &SetValue{
		Object:      payload.Object,
		Property:    payload.Property,
		Value:       value,
		Previous:    previous,
		HadPrevious: payload.HadPrevious,
	}, nil
}

func encodeObject(obj *object.Object) (objectPayload, error) {
	props, err := encodeProps(obj.Props)
	if err != nil {
		return objectPayload{}, err
	}
	return objectPayload{ID: obj.ID, Kind: obj.Kind, Props: props}, nil
}

func decodeObject(payload objectPayload) (*object.Object, error) {
	props, err := decodeProps(payload.Props)
	if err != nil {
		return nil, err
	}
	return &object.Object{ID: payload.ID, Kind: payload.Kind, Props: props}, nil
}

func encodeCreate(_ *Registry, cmd Command) (json.RawMessage, error) {
	c := cmd.(*Create)
	obj, err := encodeObject(c.Object)
	if err != nil {
		return nil, err
	}
	return json.Marshal(createPayload{Object: obj, PreviousNext: c.PreviousNext})
}

func decodeCreate(_ *Registry, raw json.RawMessage) (Command, error) {
	var payload createPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	obj, err := decodeObject(payload.Object)
	if err != nil {
		return nil, err
	}
	return &Create{Object: obj, PreviousNext: payload.PreviousNext}, nil
}

func encodeDestroy(_ *Registry, cmd Command) (json.RawMessage, error) {
	c := cmd.(*Destroy)
	obj, err := encodeObject(c.Object)
	if err != nil {
		return nil, err
	}
	return json.Marshal(destroyPayload{Object: obj})
}

func decodeDestroy(_ *Registry, raw json.RawMessage) (Command, error) {
	var payload destroyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	obj, err := decodeObject(payload.Object)
	if err != nil {
		return nil, err
	}
	return &Destroy{Object: obj}, nil
}
