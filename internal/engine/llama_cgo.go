//go:build llama

package engine

// cgo link directives for the in-process llama engine.
// - An rpath of $ORIGIN lets the runtime loader find libllama.so and
//   libggml*.so next to the built Go binary (./bin).
// - -L${SRCDIR}/../../bin lets the linker find libllama.so when building the
//   'llama' variant. No environment variables are required.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
