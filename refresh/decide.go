package refresh

import "time"

// Outcome is the ledger's verdict on a presented refresh token.
type Outcome uint8

const (
	// OutcomeUnknown: the hash was never valid for this record.
	OutcomeUnknown Outcome = iota
	// OutcomeRotate: the current token was presented; rotate it.
	OutcomeRotate
	// OutcomeGraceReissue: the just-superseded token was presented inside the
	// grace window for the first time; reissue once.
	OutcomeGraceReissue
	// OutcomeTheft: a stale token resurfaced; revoke everything for the user.
	OutcomeTheft
	OutcomeExpired
	OutcomeRevoked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRotate:
		return "rotate"
	case OutcomeGraceReissue:
		return "grace_reissue"
	case OutcomeTheft:
		return "theft"
	case OutcomeExpired:
		return "expired"
	case OutcomeRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Succeeded reports whether the outcome hands the caller a new token.
func (o Outcome) Succeeded() bool {
	return o == OutcomeRotate || o == OutcomeGraceReissue
}

// Decide classifies presented against t. It does not mutate t.
func Decide(t *Token, presented [32]byte, now time.Time, grace time.Duration) Outcome {
	if t.IsRevoked() {
		return OutcomeRevoked
	}
	if t.IsExpired(now) {
		return OutcomeExpired
	}
	if hashEqual(t.TokenHash, presented) {
		return OutcomeRotate
	}
	if !t.RotatedAt.IsZero() && hashEqual(t.PreviousHash, presented) {
		if t.IsWithinGracePeriod(now, grace) && !t.GraceUsed {
			return OutcomeGraceReissue
		}
		return OutcomeTheft
	}
	if t.wasRetired(presented) {
		return OutcomeTheft
	}
	return OutcomeUnknown
}

// Apply mutates t for outcome and reports whether t must be persisted.
// Theft revokes the record itself; the caller widens the blast radius.
func Apply(t *Token, outcome Outcome, next [32]byte, now time.Time) bool {
	switch outcome {
	case OutcomeRotate:
		t.rotateHash(next, now)
		return true
	case OutcomeGraceReissue:
		t.reissueHash(next)
		return true
	case OutcomeTheft:
		return t.Revoke(now)
	default:
		return false
	}
}
