package cds

import (
	"fmt"

	"github.com/jvmshare/cds/pkg/loader"
)

// VerificationConstraint records one assignability check the verifier
// performed while verifying a class at dump time: "from must be
// assignable to target". Constraints are appended during dump-time
// verification and replayed verbatim when the class is first loaded from
// the archive; they are never re-derived.
type VerificationConstraint struct {
	TargetName           string
	FromName             string
	FromFieldIsProtected bool
	FromIsArray          bool
	FromIsObject         bool
}

func (vc VerificationConstraint) String() string {
	return fmt.Sprintf("%s <- %s (protected=%t array=%t object=%t)",
		vc.TargetName, vc.FromName, vc.FromFieldIsProtected, vc.FromIsArray, vc.FromIsObject)
}

// Assignability is the verifier collaborator used to replay constraints
// against the current live type hierarchy. It receives the full recorded
// tuple, including the protected-field-access flag, so the replay applies
// exactly the rule the verifier applied at dump time.
type Assignability interface {
	IsReferenceAssignable(target, from string, fromFieldIsProtected, fromIsArray, fromIsObject bool) bool
}

// AddVerificationConstraint appends one constraint to the in-progress
// dump-time record of a class. Duplicates are kept: re-checking an
// identical constraint at load time is harmless. Returns false if the
// class was never observed by the dump.
func (t *DumpTimeTable) AddVerificationConstraint(c *loader.Class, target, from string,
	fromFieldIsProtected, fromIsArray, fromIsObject bool) bool {

	info := t.Get(c)
	if info == nil {
		return false
	}
	info.Constraints = append(info.Constraints, VerificationConstraint{
		TargetName:           target,
		FromName:             from,
		FromFieldIsProtected: fromFieldIsProtected,
		FromIsArray:          fromIsArray,
		FromIsObject:         fromIsObject,
	})
	return true
}

// ConstraintError reports the first archived constraint that no longer
// holds under the current runtime configuration. It is a soft failure:
// the class must not be treated as pre-verified, but loading may proceed
// through the ordinary verification path.
type ConstraintError struct {
	ClassName  string
	Constraint VerificationConstraint
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("cds: verification constraint for %s no longer holds: %s",
		e.ClassName, e.Constraint)
}

// CheckVerificationConstraints replays every constraint recorded for an
// archived class against the current type hierarchy. Run once per class,
// the first time it is loaded from the archive. A nil resolver fails
// every class that carries constraints, since they cannot be re-checked.
func CheckVerificationConstraints(rec *RunTimeClassRecord, resolver Assignability) error {
	if len(rec.Constraints) == 0 {
		return nil
	}
	if resolver == nil {
		return &ConstraintError{ClassName: rec.Name, Constraint: rec.Constraints[0]}
	}
	for _, vc := range rec.Constraints {
		if !resolver.IsReferenceAssignable(vc.TargetName, vc.FromName, vc.FromFieldIsProtected, vc.FromIsArray, vc.FromIsObject) {
			return &ConstraintError{ClassName: rec.Name, Constraint: vc}
		}
	}
	return nil
}
