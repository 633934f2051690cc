package lock

import "testing"

func TestConvIdentity(t *testing.T) {
	for m := Mode(0); m < modeCount; m++ {
		if got := Conv(m, ModeNULL); got != m {
			t.Errorf("Conv(%s, NULL) = %s, want %s", m, got, m)
		}
		if got := Conv(ModeNULL, m); got != m {
			t.Errorf("Conv(NULL, %s) = %s, want %s", m, got, m)
		}
	}
}

func TestConvCommutative(t *testing.T) {
	for a := Mode(0); a < modeCount; a++ {
		for b := Mode(0); b < modeCount; b++ {
			if Conv(a, b) != Conv(b, a) {
				t.Errorf("Conv(%s, %s) = %s but Conv(%s, %s) = %s", a, b, Conv(a, b), b, a, Conv(b, a))
			}
		}
	}
}

func TestConvKnownPairs(t *testing.T) {
	cases := []struct {
		a, b, want Mode
	}{
		{ModeS, ModeIX, ModeSIX},
		{ModeIS, ModeS, ModeS},
		{ModeIS, ModeIX, ModeIX},
		{ModeX, ModeS, ModeX},
		{ModeU, ModeIS, ModeX},
		{ModeSchS, ModeSchIX, ModeSchIX},
		{ModeSchIX, ModeSchM, ModeSchM},
	}
	for _, c := range cases {
		if got := Conv(c.a, c.b); got != c.want {
			t.Errorf("Conv(%s, %s) = %s, want %s", c.a, c.b, got, c.want)
		}
	}
}

func TestCompSymmetricCompatibility(t *testing.T) {
	// Compatibility between two concurrently-held modes must agree
	// regardless of which one is "requesting" vs "held" (spec §4.9).
	for a := Mode(0); a < ModeSchS; a++ {
		for b := Mode(0); b < ModeSchS; b++ {
			if Comp(a, b) != Comp(b, a) {
				t.Errorf("Comp(%s,%s)=%v but Comp(%s,%s)=%v", a, b, Comp(a, b), b, a, Comp(b, a))
			}
		}
	}
}

func TestCompXIncompatibleWithEverythingButNull(t *testing.T) {
	for m := ModeIS; m <= ModeU; m++ {
		if Comp(ModeX, m) {
			t.Errorf("Comp(X, %s) should be false", m)
		}
		if Comp(m, ModeX) {
			t.Errorf("Comp(%s, X) should be false", m)
		}
	}
	if !Comp(ModeX, ModeNULL) || !Comp(ModeNULL, ModeX) {
		t.Error("X must be compatible with NULL in both directions")
	}
}

func TestCompIntentionModesCompatible(t *testing.T) {
	if !Comp(ModeIS, ModeIX) || !Comp(ModeIX, ModeIS) {
		t.Error("IS and IX must be mutually compatible")
	}
	if !Comp(ModeIX, ModeIX) {
		t.Error("IX must be compatible with itself")
	}
}

func TestEscalatesXCoversEverything(t *testing.T) {
	for _, instMode := range []Mode{ModeIS, ModeS, ModeIX, ModeSIX, ModeX} {
		if !Escalates(ModeX, instMode) {
			t.Errorf("class X should escalate over instance %s", instMode)
		}
	}
}

func TestEscalatesSharedCoversReadOnly(t *testing.T) {
	if !Escalates(ModeS, ModeIS) || !Escalates(ModeS, ModeS) {
		t.Error("class S should cover instance IS/S")
	}
	if Escalates(ModeS, ModeIX) {
		t.Error("class S should not cover instance IX")
	}
}

func TestEscalatesIntentionNeverCovers(t *testing.T) {
	if Escalates(ModeIX, ModeIS) || Escalates(ModeIS, ModeIS) {
		t.Error("intention class modes never cover an instance request on their own")
	}
}
