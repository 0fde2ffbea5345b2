package cds

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jvmshare/cds/pkg/loader"
)

func TestAddVerificationConstraint(t *testing.T) {
	table := NewDumpTimeTable()
	c := builtinClass("Foo", 0)
	table.InitDumpTimeInfo(c)

	require.True(t, table.AddVerificationConstraint(c, "I", "J", false, false, true))
	// Duplicates are kept, not deduplicated.
	require.True(t, table.AddVerificationConstraint(c, "I", "J", false, false, true))
	require.Len(t, table.Get(c).Constraints, 2)

	// Unobserved class: nothing to record against.
	other := builtinClass("Bar", 0)
	require.False(t, table.AddVerificationConstraint(other, "I", "J", false, false, true))
}

func TestCheckVerificationConstraints(t *testing.T) {
	rec := &RunTimeClassRecord{
		Name: "Foo",
		Constraints: []VerificationConstraint{
			{TargetName: "I", FromName: "J", FromIsObject: true},
		},
	}

	t.Run("constraint still holds", func(t *testing.T) {
		resolver := assignabilityMap{{"I", "J"}: true}
		require.NoError(t, CheckVerificationConstraints(rec, resolver))
	})

	t.Run("hierarchy changed", func(t *testing.T) {
		// J is no longer assignable to I: the class must not be treated
		// as pre-verified.
		resolver := assignabilityMap{}
		err := CheckVerificationConstraints(rec, resolver)
		require.Error(t, err)

		var cerr *ConstraintError
		require.ErrorAs(t, err, &cerr)
		require.Equal(t, "Foo", cerr.ClassName)
		require.Equal(t, "I", cerr.Constraint.TargetName)
	})

	t.Run("no constraints", func(t *testing.T) {
		require.NoError(t, CheckVerificationConstraints(&RunTimeClassRecord{Name: "Bare"}, nil))
	})

	t.Run("nil resolver with constraints", func(t *testing.T) {
		require.Error(t, CheckVerificationConstraints(rec, nil))
	})
}

// recordingResolver captures every tuple handed to the collaborator.
type recordingResolver struct {
	calls []VerificationConstraint
}

func (r *recordingResolver) IsReferenceAssignable(target, from string, fromFieldIsProtected, fromIsArray, fromIsObject bool) bool {
	r.calls = append(r.calls, VerificationConstraint{
		TargetName:           target,
		FromName:             from,
		FromFieldIsProtected: fromFieldIsProtected,
		FromIsArray:          fromIsArray,
		FromIsObject:         fromIsObject,
	})
	return true
}

func TestReplayPassesFullConstraintTuple(t *testing.T) {
	rec := &RunTimeClassRecord{
		Name: "Foo",
		Constraints: []VerificationConstraint{
			{TargetName: "I", FromName: "J", FromFieldIsProtected: true, FromIsObject: true},
			{TargetName: "K", FromName: "[LA;", FromIsArray: true},
		},
	}

	resolver := &recordingResolver{}
	require.NoError(t, CheckVerificationConstraints(rec, resolver))
	require.Equal(t, rec.Constraints, resolver.calls)
}

func TestConstraintsSurviveSerialization(t *testing.T) {
	table := NewDumpTimeTable()
	c := builtinClass("Foo", 0)
	table.InitDumpTimeInfo(c)
	table.AddVerificationConstraint(c, "I", "J", true, false, true)
	table.AddVerificationConstraint(c, "K", "[LA;", false, true, false)

	data, err := WriteToArchive(table, []string{"cp"}, StaticLayer)
	require.NoError(t, err)
	layer, err := ReadDictionaries(data)
	require.NoError(t, err)

	rec := FindRecord(layer.Builtin, "Foo")
	require.NotNil(t, rec)
	require.Equal(t, []VerificationConstraint{
		{TargetName: "I", FromName: "J", FromFieldIsProtected: true, FromIsObject: true},
		{TargetName: "K", FromName: "[LA;", FromIsArray: true},
	}, rec.Constraints)
	require.Equal(t, loader.Builtin, rec.Category)
}
