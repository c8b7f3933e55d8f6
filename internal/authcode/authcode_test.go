package authcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriver(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrKeyMissing)

	d, err := New([]byte("demo-key"))
	require.NoError(t, err)

	code := d.Derive("4111111111111111", "04/28")
	require.Len(t, code, 3)
	require.Equal(t, code, d.Derive("4111 1111 1111 1111", "04/28"))

	other, err := New([]byte("another-key"))
	require.NoError(t, err)

	// different inputs almost always change the code; compare several to
	// keep the check stable
	same := 0
	for _, face := range []string{"01/29", "02/29", "03/29", "04/29", "05/29"} {
		if d.Derive("4111111111111111", face) == other.Derive("4111111111111111", face) {
			same++
		}
	}
	require.Less(t, same, 5)

	d.Wipe()
	require.Nil(t, d.key)
}
