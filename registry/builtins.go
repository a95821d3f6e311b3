package registry

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/google/gocab/decode"
	"github.com/google/gocab/encode"
)

// Recognised params keys. Not every constructor uses every key; unused
// keys are ignored rather than rejected so callers can pass a single
// params map built from CLI flags across algorithms.
const (
	ParamSource     = "src"     // decode.BlockSource, required for all decoders
	ParamSink       = "dst"     // encode.BlockSink, required for all encoders
	ParamWindowBits = "window_bits"
	ParamLZSSMode   = "lzss_mode"
	ParamSalvage    = "salvage"
	ParamFixMSZIP   = "fix_mszip"
	ParamLog        = "log"
	ParamDelta      = "delta"
	ParamReset      = "reset_interval"
)

func paramBool(p map[string]interface{}, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func paramLog(p map[string]interface{}) *logrus.Logger {
	if l, ok := p[ParamLog].(*logrus.Logger); ok && l != nil {
		return l
	}
	return logrus.StandardLogger()
}

func paramUint(p map[string]interface{}, key string, def uint) uint {
	switch v := p[key].(type) {
	case uint:
		return v
	case int:
		return uint(v)
	default:
		return def
	}
}

func requireSource(p map[string]interface{}) (decode.BlockSource, error) {
	src, ok := p[ParamSource].(decode.BlockSource)
	if !ok || src == nil {
		return nil, errors.Errorf("registry: params[%q] must be a decode.BlockSource", ParamSource)
	}
	return src, nil
}

func requireSink(p map[string]interface{}) (encode.BlockSink, error) {
	dst, ok := p[ParamSink].(encode.BlockSink)
	if !ok || dst == nil {
		return nil, errors.Errorf("registry: params[%q] must be an encode.BlockSink", ParamSink)
	}
	return dst, nil
}

func init() {
	registerBuiltins(Default)
}

// registerBuiltins installs the five core algorithms' decoder and encoder
// constructors. Called for Default at package init; it is unexported, so
// only code in this package can populate another instance with it.
func registerBuiltins(r *Registry) {
	mustRegister(r, "none", Decoder, 0, 0, func(p map[string]interface{}) (interface{}, error) {
		src, err := requireSource(p)
		if err != nil {
			return nil, err
		}
		return decode.NewNoneDecoder(src), nil
	})
	mustRegister(r, "none", Encoder, 0, 0, func(p map[string]interface{}) (interface{}, error) {
		dst, err := requireSink(p)
		if err != nil {
			return nil, err
		}
		return encode.NewNoneEncoder(dst), nil
	})

	mustRegister(r, "lzss", Decoder, 0, -1, func(p map[string]interface{}) (interface{}, error) {
		src, err := requireSource(p)
		if err != nil {
			return nil, err
		}
		mode, _ := p[ParamLZSSMode].(decode.LZSSMode)
		return decode.NewLZSSDecoder(src, mode), nil
	})
	mustRegister(r, "lzss", Encoder, 0, -1, func(p map[string]interface{}) (interface{}, error) {
		dst, err := requireSink(p)
		if err != nil {
			return nil, err
		}
		mode, _ := p[ParamLZSSMode].(encode.LZSSMode)
		return encode.NewLZSSEncoder(dst, mode), nil
	})

	mustRegister(r, "mszip", Decoder, 0, 1, func(p map[string]interface{}) (interface{}, error) {
		src, err := requireSource(p)
		if err != nil {
			return nil, err
		}
		opts := decode.MSZIPOptions{
			Salvage:   paramBool(p, ParamSalvage),
			FixFrames: paramBool(p, ParamFixMSZIP),
			Log:       paramLog(p),
		}
		return decode.NewMSZIPDecoder(src, opts), nil
	})
	mustRegister(r, "mszip", Encoder, 0, 1, func(p map[string]interface{}) (interface{}, error) {
		dst, err := requireSink(p)
		if err != nil {
			return nil, err
		}
		return encode.NewMSZIPEncoder(dst), nil
	})

	mustRegister(r, "quantum", Decoder, 0, 2, func(p map[string]interface{}) (interface{}, error) {
		src, err := requireSource(p)
		if err != nil {
			return nil, err
		}
		opts := decode.QuantumOptions{
			WindowBits: paramUint(p, ParamWindowBits, 15),
			Salvage:    paramBool(p, ParamSalvage),
			Log:        paramLog(p),
		}
		return decode.NewQuantumDecoder(src, opts), nil
	})
	mustRegister(r, "quantum", Encoder, 0, 2, func(p map[string]interface{}) (interface{}, error) {
		// This entry always fails, so no quantum encoder can be built
		// through the registry: spec.md §8 only calls for a
		// "Quantum-subset" round trip, which encode.NewQuantumSubsetEncoder
		// provides directly to tests without going through the registry.
		return nil, errors.Wrap(ErrNotRegistered, "quantum encoder")
	})

	mustRegister(r, "lzx", Decoder, 0, 3, func(p map[string]interface{}) (interface{}, error) {
		src, err := requireSource(p)
		if err != nil {
			return nil, err
		}
		opts := decode.LZXOptions{
			WindowBits:    paramUint(p, ParamWindowBits, 15),
			ResetInterval: int(paramUint(p, ParamReset, 0)),
			Delta:         paramBool(p, ParamDelta),
			Salvage:       paramBool(p, ParamSalvage),
			Log:           paramLog(p),
		}
		return decode.NewLZXDecoder(src, opts), nil
	})
	mustRegister(r, "lzx", Encoder, 0, 3, func(p map[string]interface{}) (interface{}, error) {
		dst, err := requireSink(p)
		if err != nil {
			return nil, err
		}
		opts := encode.LZXOptions{WindowBits: paramUint(p, ParamWindowBits, 15)}
		return encode.NewLZXVerbatimEncoder(dst, opts), nil
	})
}

func mustRegister(r *Registry, name string, cat Category, priority, tag int, ctor Constructor) {
	if err := r.Register(name, cat, priority, tag, ctor); err != nil {
		panic(err)
	}
}
