//go:build linux && cgo

package barrier

/*
#include <stdint.h>

// x86-64 full memory fence: no load or store may cross this point in
// either direction.
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}
*/
import "C"

func fence() {
	C.mfence_impl()
}
