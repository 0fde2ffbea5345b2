//go:build cdsdebug

package cds

// loadingGuard enforces that no class-loading side effects happen while
// the dump-time table is being traversed for serialization or root
// walking. Nesting a traversal, or touching the table mid-traversal, is
// a programming error, so the debug build panics rather than recovers.
type loadingGuard struct {
	noClassLoading bool
}

func (g *loadingGuard) beginNoClassLoading() func() {
	if g.noClassLoading {
		panic("cds: nested dump-time table traversal")
	}
	g.noClassLoading = true
	return func() { g.noClassLoading = false }
}

func (g *loadingGuard) assertLoadingAllowed() {
	if g.noClassLoading {
		panic("cds: class observed while dump-time table is being traversed")
	}
}
