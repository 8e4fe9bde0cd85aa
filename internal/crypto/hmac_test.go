package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuth() *HMACAuth {
	return &HMACAuth{
		Key:        "api-key-1234",
		Secret:     base64.StdEncoding.EncodeToString([]byte("super-secret")),
		Passphrase: "passphrase",
	}
}

func TestL2HeadersAtDeterministic(t *testing.T) {
	h := testAuth()

	a := h.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)
	b := h.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)

	require.Equal(t, a, b)
	assert.Equal(t, "0xabc", a["POLY_ADDRESS"])
	assert.Equal(t, "api-key-1234", a["POLY_API_KEY"])
	assert.Equal(t, "1700000000", a["POLY_TIMESTAMP"])
	assert.Equal(t, "passphrase", a["POLY_PASSPHRASE"])
	assert.NotEmpty(t, a["POLY_SIGNATURE"])
}

func TestL2HeadersSignatureCoversInputs(t *testing.T) {
	h := testAuth()
	base := h.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)

	otherPath := h.L2HeadersAt("0xabc", "GET", "/trades", "", 1700000000)
	assert.NotEqual(t, base["POLY_SIGNATURE"], otherPath["POLY_SIGNATURE"])

	otherBody := h.L2HeadersAt("0xabc", "POST", "/orders", `{"size":1}`, 1700000000)
	assert.NotEqual(t, base["POLY_SIGNATURE"], otherBody["POLY_SIGNATURE"])

	otherTS := h.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000001)
	assert.NotEqual(t, base["POLY_SIGNATURE"], otherTS["POLY_SIGNATURE"])
}

func TestL2HeadersRawSecretFallback(t *testing.T) {
	h := testAuth()
	h.Secret = "not base64!!"

	// A non-base64 secret must still produce a signature, not a panic.
	out := h.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)
	assert.NotEmpty(t, out["POLY_SIGNATURE"])
}

func TestHMACAuthStringRedacts(t *testing.T) {
	h := testAuth()
	s := h.String()
	assert.Contains(t, s, "api-****")
	assert.NotContains(t, s, h.Secret)
}
