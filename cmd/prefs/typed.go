package prefs

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/prefkv/lib/codec"
	"github.com/ValentinKolb/prefkv/lib/pref"
)

// typed runs the preference operations of the commands for one value type
type typed interface {
	Type() codec.Type
	// get registers a handle for name that resolves once the session started
	get(s *session, name, defText string) (func(ctx context.Context) (string, error), error)
	// set registers a handle for name that writes value once the session started
	set(s *session, name, value string) (func() error, error)
	// watch registers a handle for name that reports every change to out
	watch(s *session, name string, out func(name, value string)) error
}

type typedPref[T pref.Value] struct {
	kind   pref.Kind[T]
	decode func([]byte) (T, error)
}

func typedFor(t codec.Type) (typed, error) {
	switch t {
	case codec.TypeBool:
		return typedPref[bool]{kind: pref.BoolKind, decode: codec.DecodeBool}, nil
	case codec.TypeInt32:
		return typedPref[int32]{kind: pref.Int32Kind, decode: codec.DecodeInt32}, nil
	case codec.TypeInt64:
		return typedPref[int64]{kind: pref.Int64Kind, decode: codec.DecodeInt64}, nil
	case codec.TypeFloat32:
		return typedPref[float32]{kind: pref.Float32Kind, decode: codec.DecodeFloat32}, nil
	case codec.TypeString:
		return typedPref[string]{kind: pref.StringKind, decode: codec.DecodeString}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", t)
	}
}

func (tp typedPref[T]) Type() codec.Type {
	return tp.kind.Type
}

// parse converts the text form of a value
func (tp typedPref[T]) parse(text string) (T, error) {
	b, err := codec.Parse(tp.kind.Type, text)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s value %q: %w", tp.kind.Type, text, err)
	}
	return tp.decode(b)
}

func (tp typedPref[T]) get(s *session, name, defText string) (func(ctx context.Context) (string, error), error) {
	var def T
	if defText != "" {
		var err error
		if def, err = tp.parse(defText); err != nil {
			return nil, err
		}
	}
	p, err := pref.New(s.host, name, def, pref.WithQualifier(s.conf.Qualifier))
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (string, error) {
		v, err := p.GetValue(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprint(v), nil
	}, nil
}

func (tp typedPref[T]) set(s *session, name, value string) (func() error, error) {
	v, err := tp.parse(value)
	if err != nil {
		return nil, err
	}
	var def T
	p, err := pref.New(s.host, name, def, pref.WithQualifier(s.conf.Qualifier))
	if err != nil {
		return nil, err
	}
	return func() error {
		return p.SetValue(v)
	}, nil
}

func (tp typedPref[T]) watch(s *session, name string, out func(name, value string)) error {
	var def T
	_, err := pref.New(s.host, name, def,
		pref.WithQualifier(s.conf.Qualifier),
		pref.WithSubscriber(pref.NewSubscriber(func(v T) {
			out(name, fmt.Sprint(v))
		})),
	)
	return err
}
