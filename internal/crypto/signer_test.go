package crypto

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner("0x"+testKeyHex, 137)
	require.NoError(t, err)

	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(pk.PublicKey), s.Address())

	_, err = NewSigner("nope", 137)
	assert.Error(t, err)
}

func TestSignAuthMessageRecoverable(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)

	sigHex, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sigHex, "0x"))

	sig := common.FromHex(sigHex)
	require.Len(t, sig, 65)
	assert.GreaterOrEqual(t, sig[64], byte(27))

	// Recover the digest the same way and confirm the signature matches the
	// signer's key.
	digest := eip712Hash(s.domainSep, ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		common.LeftPadBytes(s.Address().Bytes(), 32),
		bigIntTo32Bytes(big.NewInt(1700000000)),
		bigIntTo32Bytes(big.NewInt(0)),
	)))

	recSig := make([]byte, 65)
	copy(recSig, sig)
	recSig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, recSig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), ethcrypto.PubkeyToAddress(*pub))
}

func TestSignOrderDeterministic(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)

	order := OrderPayload{
		Salt:          "12345",
		Maker:         s.Address().Hex(),
		Signer:        s.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount:   "22000000",
		TakerAmount:   "50000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0,
		SignatureType: 1,
	}

	a, err := s.SignOrder(order)
	require.NoError(t, err)
	b, err := s.SignOrder(order)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	order.MakerAmount = "23000000"
	c, err := s.SignOrder(order)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSignOrderRejectsBadNumbers(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)

	_, err = s.SignOrder(OrderPayload{Salt: "not-a-number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid salt")
}
