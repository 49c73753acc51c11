// Package compiler translates whitfield sources, a small language for
// fixed-modulus arithmetic, into LLVM IR and a matching C header.
//
// Pipeline: source → Lex → Parse → passes (Importer, LimitCondenser,
// ConstantCondenser, FunctionCondenser) → Generator → target text
package compiler
