//go:build !cdsdebug

package cds

// loadingGuard enforces, in debug builds only, that no class-loading
// side effects happen while the dump-time table is being traversed for
// serialization or root walking. Release builds compile it to nothing.
type loadingGuard struct{}

func (g *loadingGuard) beginNoClassLoading() func() { return func() {} }

func (g *loadingGuard) assertLoadingAllowed() {}
