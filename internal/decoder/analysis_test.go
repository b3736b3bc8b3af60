package decoder

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/faanross/stegocrypt/internal/carrier"
	"github.com/faanross/stegocrypt/internal/encoder"
	"github.com/faanross/stegocrypt/internal/lsb"
	"github.com/faanross/stegocrypt/internal/scrypto"
)

func TestAnalyzeSecurityFlatCarrier(t *testing.T) {
	r := AnalyzeSecurity(lsb.SampleSlots(make([]int16, 800)), nil)

	if r.Slots != 800 || r.Zeros != 800 || r.Ones != 0 {
		t.Fatalf("unexpected counts %+v", r)
	}
	if r.Entropy != 0 {
		t.Fatalf("entropy of constant plane = %f, want 0", r.Entropy)
	}
	if r.ZeroRatio() != 1 {
		t.Fatalf("ZeroRatio = %f, want 1", r.ZeroRatio())
	}
}

func TestAnalyzeSecurityNoise(t *testing.T) {
	var buf bytes.Buffer
	r := AnalyzeSecurity(noiseAudio(80000, 10).Slots(), &buf)

	if r.Slots != analysisSampleSlots {
		t.Fatalf("sampled %d slots, want %d", r.Slots, analysisSampleSlots)
	}
	if r.Entropy < 7.5 {
		t.Fatalf("entropy of random plane = %f, expected close to 8", r.Entropy)
	}
	if !strings.Contains(buf.String(), "Security Analysis") {
		t.Fatalf("report not written")
	}
}

func TestAnalyzeSecurityEmpty(t *testing.T) {
	r := AnalyzeSecurity(lsb.SampleSlots(nil), nil)
	if r.Slots != 0 || r.Entropy != 0 || r.ZeroRatio() != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestTryMultiplePasswords(t *testing.T) {
	stego, err := encoder.Hide(carrier.NewAudio(1, 8000, make([]int16, 1000)), "found", "third")
	if err != nil {
		t.Fatalf("Hide: %v", err)
	}

	var buf bytes.Buffer
	msg, idx, err := TryMultiplePasswords(stego, []string{"first", "second", "third"}, &buf)
	if err != nil {
		t.Fatalf("TryMultiplePasswords: %v", err)
	}
	if msg != "found" || idx != 2 {
		t.Fatalf("got %q at %d, want %q at 2", msg, idx, "found")
	}
	if strings.Count(buf.String(), "Wrong password") != 2 {
		t.Fatalf("expected two failed attempts in report:\n%s", buf.String())
	}

	_, idx, err = TryMultiplePasswords(stego, []string{"nope"}, nil)
	if !errors.Is(err, scrypto.ErrAuthentication) || idx != -1 {
		t.Fatalf("expected ErrAuthentication, got %v (idx %d)", err, idx)
	}
}

func TestTryMultiplePasswordsNoContainer(t *testing.T) {
	c := carrier.NewAudio(1, 8000, make([]int16, 16))
	_, _, err := TryMultiplePasswords(c, []string{"a", "b"}, nil)
	if !errors.Is(err, lsb.ErrCarrierTooSmall) {
		t.Fatalf("expected ErrCarrierTooSmall, got %v", err)
	}
}
