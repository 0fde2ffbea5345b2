//go:build cdsdebug

package cds

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardPanicsOnNestedTraversal(t *testing.T) {
	table := NewDumpTimeTable()
	table.InitDumpTimeInfo(builtinClass("A", 0))
	table.InitDumpTimeInfo(builtinClass("B", 0))

	require.Panics(t, func() {
		table.ClassesDo(func(*DumpTimeClassInfo) bool {
			table.ClassesDo(func(*DumpTimeClassInfo) bool { return true })
			return true
		})
	})
}

func TestGuardPanicsOnObservationDuringTraversal(t *testing.T) {
	table := NewDumpTimeTable()
	table.InitDumpTimeInfo(builtinClass("A", 0))

	require.Panics(t, func() {
		table.ClassesDo(func(*DumpTimeClassInfo) bool {
			table.FindOrAllocateInfoFor(builtinClass("B", 0))
			return true
		})
	})
}

func TestGuardReleasedAfterTraversal(t *testing.T) {
	table := NewDumpTimeTable()
	table.InitDumpTimeInfo(builtinClass("A", 0))

	table.ClassesDo(func(*DumpTimeClassInfo) bool { return true })
	require.NotPanics(t, func() {
		table.FindOrAllocateInfoFor(builtinClass("B", 0))
	})
}
