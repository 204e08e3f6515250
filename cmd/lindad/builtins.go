package main

import (
	"github.com/bodand/lindadb/dispatch"
	"github.com/bodand/lindadb/value"
)

// registerBuiltins installs the small set of eval functions every
// deployment ships with, so a fresh cluster has something to eval against
// without every caller rolling its own arithmetic/string helpers.
func registerBuiltins(reg *dispatch.Registry) {
	reg.Register("strlen",
		dispatch.Signature{
			Params: []value.Kind{value.KindString},
			Result: []value.Kind{value.KindInt64},
		},
		func(args value.Tuple) (value.Tuple, error) {
			return value.NewTuple(value.NewInt64(int64(len(args.At(0).String_())))), nil
		})

	reg.Register("add",
		dispatch.Signature{
			Params: []value.Kind{value.KindInt64, value.KindInt64},
			Result: []value.Kind{value.KindInt64},
		},
		func(args value.Tuple) (value.Tuple, error) {
			return value.NewTuple(value.NewInt64(args.At(0).Int64() + args.At(1).Int64())), nil
		})

	reg.Register("concat",
		dispatch.Signature{
			Params: []value.Kind{value.KindString, value.KindString},
			Result: []value.Kind{value.KindString},
		},
		func(args value.Tuple) (value.Tuple, error) {
			return value.NewTuple(value.NewString(args.At(0).String_() + args.At(1).String_())), nil
		})
}
