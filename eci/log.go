package eci

import "nvec-go/x/fmtx"

// logf and logln keep the hot path free of fmt's allocations on MCU builds
// (fmtx switches implementation by build tag) while still giving readable
// diagnostics on the host. Nothing here is wired to a logging library: the
// core never had one to begin with.
func logf(format string, a ...any) { println(fmtx.Sprintf(format, a...)) }
func logln(a ...any)               { println(fmtx.Sprint(a...)) }
