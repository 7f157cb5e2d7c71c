package signing

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVectors(t *testing.T) {
	// RFC 4231 / RFC 2202 test case 2.
	message := []byte("what do ya want for nothing?")

	v256, err := NewVerifier([]byte("Jefe"), SHA256)
	require.NoError(t, err)
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", v256.Sign(message))

	v1, err := NewVerifier([]byte("Jefe"), SHA1)
	require.NoError(t, err)
	assert.Equal(t, "effcdf6ae5eb2fa2d27416d5f184df9c259a7c79", v1.Sign(message))
}

func TestNewVerifierRejectsBadInput(t *testing.T) {
	_, err := NewVerifier(nil, SHA256)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewVerifier([]byte("k"), Algorithm("md5"))
	assert.Error(t, err)

	v, err := NewVerifier([]byte("k"), "")
	require.NoError(t, err)
	assert.Len(t, v.Sign(nil), 64)
}

func TestVerifierCopiesSecret(t *testing.T) {
	secret := []byte("shared-secret")
	v, err := NewVerifier(secret, SHA256)
	require.NoError(t, err)
	sig := v.Sign([]byte(`{"job":"X"}`))

	secret[0] = 'X'
	assert.Equal(t, Verified, v.Verify([]byte(`{"job":"X"}`), sig))
}

func TestVerify(t *testing.T) {
	v, err := NewVerifier([]byte("shared-secret"), SHA256)
	require.NoError(t, err)
	body := []byte(`{"job":"X"}`)
	sig := v.Sign(body)

	other, err := NewVerifier([]byte("other-secret"), SHA256)
	require.NoError(t, err)

	tests := []struct {
		name     string
		body     []byte
		supplied string
		want     Outcome
	}{
		{"valid", body, sig, Verified},
		{"missing", body, "", InvalidSignature},
		{"not hex", body, "zz" + sig[2:], InvalidSignature},
		{"truncated", body, sig[:len(sig)-2], InvalidSignature},
		{"upper case", body, strings.ToUpper(sig), InvalidSignature},
		{"trailing space", body, sig + " ", InvalidSignature},
		{"other secret", body, other.Sign(body), InvalidSignature},
		{"different body", []byte(`{"job":"Y"}`), sig, InvalidSignature},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := v.Verify(tc.body, tc.supplied)
			assert.Equal(t, tc.want, got)
			if tc.want == Verified {
				assert.NoError(t, got.Err())
			} else {
				assert.ErrorIs(t, got.Err(), ErrInvalidSignature)
			}
		})
	}
}

func TestVerifySingleBitMutations(t *testing.T) {
	v, err := NewVerifier([]byte("shared-secret"), SHA256)
	require.NoError(t, err)
	body := []byte(`{"job":"X","arguments":[1,2,3]}`)
	sig := v.Sign(body)
	require.Equal(t, Verified, v.Verify(body, sig))

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 1 << bit
			if v.Verify(mutated, sig) != InvalidSignature {
				t.Fatalf("body byte %d bit %d: mutation accepted", i, bit)
			}
		}
	}
	for i := 0; i < len(sig); i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := []byte(sig)
			mutated[i] ^= 1 << bit
			if v.Verify(body, string(mutated)) != InvalidSignature {
				t.Fatalf("signature byte %d bit %d: mutation accepted", i, bit)
			}
		}
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	v, err := NewVerifier([]byte("shared-secret"), SHA1)
	require.NoError(t, err)
	body := []byte("payload")
	sig := v.Sign(body)

	for i := 0; i < 3; i++ {
		assert.Equal(t, Verified, v.Verify(body, sig))
		assert.Equal(t, InvalidSignature, v.Verify(body, "deadbeef"))
	}
	assert.Equal(t, sig, v.Sign(body))
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey([]byte("master"))
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("master"))
	require.NoError(t, err)
	k3, err := DeriveKey([]byte("other"))
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, []byte("master"), k1)

	_, err = DeriveKey(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestReadAndRewind(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"job":"X"}`))

	data, err := ReadAndRewind(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, `{"job":"X"}`, string(data))

	again, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"job":"X"}`, string(again))
}

func TestReadAndRewindLimits(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("0123456789"))
	_, err := ReadAndRewind(r, 10)
	assert.NoError(t, err)

	r = httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("0123456789A"))
	_, err = ReadAndRewind(r, 10)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestReadAndRewindEmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	data, err := ReadAndRewind(r, 10)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, http.NoBody, r.Body)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadAndRewindReadError(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	r.Body = io.NopCloser(failingReader{})
	_, err := ReadAndRewind(r, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBodyTooLarge)
}
