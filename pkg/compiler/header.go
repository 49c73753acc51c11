package compiler

import (
	"fmt"
	"iter"
	"strings"

	"whitfield/pkg/fieldmath"
)

// HeaderGenerator emits a C header declaring the value type, the constant
// storage and one prototype per function of the LLVM module.
//
//	#pragma once
//	typedef unsigned char wht_foo_t[32];
//	extern wht_foo_t wht_foo_a;
//	void wht_foo_bar(const wht_foo_t x, wht_foo_t y);
type HeaderGenerator struct{}

func (HeaderGenerator) Generate(prog *Program) (iter.Seq[string], error) {
	limit, err := checkFolded(prog)
	if err != nil {
		return nil, err
	}
	typ := fmt.Sprintf("wht_%s_t", prog.Name)

	return func(yield func(string) bool) {
		if !yield("#pragma once") ||
			!yield(fmt.Sprintf("typedef unsigned char %s[%d];", typ, fieldmath.Bytes(limit))) {
			return
		}
		for _, c := range prog.Constants() {
			if !yield(fmt.Sprintf("extern %s wht_%s_%s;", typ, prog.Name, c.Name)) {
				return
			}
		}
		for _, fn := range prog.Functions() {
			params := make([]string, 0, len(fn.Args)+len(fn.Rets))
			for _, a := range fn.Args {
				params = append(params, fmt.Sprintf("const %s %s", typ, a))
			}
			for _, r := range fn.Rets {
				params = append(params, fmt.Sprintf("%s %s", typ, r))
			}
			if !yield(fmt.Sprintf("void wht_%s_%s(%s);", prog.Name, fn.Name, strings.Join(params, ", "))) {
				return
			}
		}
	}, nil
}
