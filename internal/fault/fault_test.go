package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := Configf("rule 'phos'", "unknown site %q", "s3")
	assert.Equal(t, `config fault: rule 'phos': unknown site "s3"`, err.Error())

	wrapped := WrapConfig(errors.New("boom"), "mol A", "bad shape")
	assert.Equal(t, "config fault: mol A: bad shape: boom", wrapped.Error())
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("loading: %w", Configf("x", "broken"))
	assert.True(t, IsKind(err, Config))
	assert.False(t, IsKind(err, Timeout))
	assert.False(t, IsKind(errors.New("plain"), Config))
	assert.True(t, errors.Is(err, &Error{Kind: Config}))
	assert.False(t, errors.Is(err, &Error{Kind: Exhausted}))
}

func TestRecover(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		Invariantf("species s1", "vector length %d != %d", 1, 2)
		return nil
	}
	err := run()
	require.Error(t, err)
	assert.True(t, IsKind(err, Invariant))

	assert.Panics(t, func() {
		var err error
		defer Recover(&err)
		panic("not a fault")
	})
}
