package refresh

import (
	"testing"
	"time"
)

func TestDecideTransitions(t *testing.T) {
	now := time.Now()
	grace := 30 * time.Second

	tok, t0 := newTestToken(t, now.Add(time.Hour))
	if got := Decide(tok, HashToken(t0), now, grace); got != OutcomeRotate {
		t.Fatalf("active token: expected rotate, got %s", got)
	}

	t1, _ := NewPlainToken(tok.ID)
	Apply(tok, OutcomeRotate, HashToken(t1), now)

	if got := Decide(tok, HashToken(t1), now, grace); got != OutcomeRotate {
		t.Fatalf("current token after rotation: expected rotate, got %s", got)
	}
	if got := Decide(tok, HashToken(t0), now.Add(grace), grace); got != OutcomeGraceReissue {
		t.Fatalf("previous token inside grace: expected grace reissue, got %s", got)
	}
	if got := Decide(tok, HashToken(t0), now.Add(grace+time.Second), grace); got != OutcomeTheft {
		t.Fatalf("previous token outside grace: expected theft, got %s", got)
	}

	t2, _ := NewPlainToken(tok.ID)
	Apply(tok, OutcomeGraceReissue, HashToken(t2), now.Add(time.Second))
	if !tok.GraceUsed {
		t.Fatal("grace reissue must mark grace used")
	}
	if !tok.RotatedAt.Equal(now) {
		t.Fatal("grace reissue must not slide the grace window")
	}
	if got := Decide(tok, HashToken(t0), now.Add(2*time.Second), grace); got != OutcomeTheft {
		t.Fatalf("second use of previous token inside grace: expected theft, got %s", got)
	}
	if got := Decide(tok, HashToken(t1), now.Add(2*time.Second), grace); got != OutcomeTheft {
		t.Fatalf("token displaced by grace reissue: expected theft, got %s", got)
	}
	if got := Decide(tok, HashToken(t2), now.Add(2*time.Second), grace); got != OutcomeRotate {
		t.Fatalf("reissued token: expected rotate, got %s", got)
	}

	stranger, _ := NewPlainToken(tok.ID)
	if got := Decide(tok, HashToken(stranger), now, grace); got != OutcomeUnknown {
		t.Fatalf("never-issued hash: expected unknown, got %s", got)
	}
}

func TestDecideExpiredAndRevokedWin(t *testing.T) {
	now := time.Now()
	tok, plain := newTestToken(t, now.Add(time.Minute))

	if got := Decide(tok, HashToken(plain), now.Add(2*time.Minute), time.Minute); got != OutcomeExpired {
		t.Fatalf("expected expired, got %s", got)
	}

	tok.Revoke(now)
	if got := Decide(tok, HashToken(plain), now, time.Minute); got != OutcomeRevoked {
		t.Fatalf("expected revoked, got %s", got)
	}
	if Apply(tok, OutcomeRevoked, [32]byte{1}, now) {
		t.Fatal("revoked outcome must not request a write")
	}
}

func TestApplyTheftRevokesRecord(t *testing.T) {
	now := time.Now()
	tok, _ := newTestToken(t, now.Add(time.Hour))
	if !Apply(tok, OutcomeTheft, [32]byte{}, now) {
		t.Fatal("theft on a live record must request a write")
	}
	if !tok.IsRevoked() {
		t.Fatal("theft must revoke the record")
	}
}
