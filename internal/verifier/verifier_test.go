package verifier

import (
	"testing"

	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/pkg/plugin"
)

type staticProvider struct {
	DevmodeProvider
	systems map[string]proof.VerifyFunc
}

func (p staticProvider) Capabilities() map[string]proof.VerifyFunc {
	return p.systems
}

func TestHostRegisterProviderMergesCapabilities(t *testing.T) {
	caps := proof.NewCapabilitySet()
	host := NewHost(nil, caps)

	provider := staticProvider{systems: map[string]proof.VerifyFunc{
		"groth16": func(_, _ []byte, _ proof.Hash) bool { return true },
		"plonk":   func(_, _ []byte, _ proof.Hash) bool { return false },
	}}
	if err := host.RegisterProvider("static", provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	if !caps.Supports("groth16") || !caps.Supports("plonk") {
		t.Fatalf("expected both systems merged, got %v", caps.Systems())
	}
	if err := host.RegisterProvider("nil", nil); err == nil {
		t.Fatalf("expected nil provider rejected")
	}
}

func TestDevmodeDigestRoundTrip(t *testing.T) {
	var imageID proof.Hash
	imageID[0] = 0x42
	inputs := []byte("public inputs")

	receipt := SealDigest(inputs, imageID)
	if !VerifyDigest(receipt, inputs, imageID) {
		t.Fatalf("sealed receipt must verify")
	}

	// 回执可以带有附加负载, 只校验前 32 字节。
	padded := append(append([]byte{}, receipt...), 0xde, 0xad)
	if !VerifyDigest(padded, inputs, imageID) {
		t.Fatalf("padded receipt must verify")
	}

	if VerifyDigest(receipt, []byte("other inputs"), imageID) {
		t.Fatalf("tampered inputs must fail")
	}
	var otherImage proof.Hash
	otherImage[0] = 0x43
	if VerifyDigest(receipt, inputs, otherImage) {
		t.Fatalf("foreign image id must fail")
	}
	if VerifyDigest(receipt[:16], inputs, imageID) {
		t.Fatalf("short receipt must fail")
	}
}

func TestDevmodeProviderInfo(t *testing.T) {
	info := DevmodeProvider{}.Info()
	if info.ID != "devmode" || info.Category != plugin.TypeVerifier {
		t.Fatalf("unexpected plugin info: %+v", info)
	}
	systems := DevmodeProvider{}.Capabilities()
	if _, ok := systems["devmode"]; !ok {
		t.Fatalf("expected devmode capability, got %v", systems)
	}
}
