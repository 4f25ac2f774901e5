package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiateHighestCommon(t *testing.T) {
	client := []Triple{{1, 0, 0}, {1, 1, 0}}
	server := []Triple{{1, 0, 0}, {1, 1, 0}, {2, 0, 0}}

	got, err := Negotiate(client, server)
	require.NoError(t, err)
	require.Equal(t, Triple{1, 1, 0}, got)
}

func TestNegotiateEmptyIntersectionErrors(t *testing.T) {
	_, err := Negotiate([]Triple{{1, 0, 0}}, []Triple{{2, 0, 0}})
	require.ErrorIs(t, err, ErrNoCommonVersion)
}

func TestNegotiateEmptyInputErrors(t *testing.T) {
	_, err := Negotiate(nil, []Triple{{1, 0, 0}})
	require.ErrorIs(t, err, ErrNoCommonVersion)

	_, err = Negotiate([]Triple{{1, 0, 0}}, nil)
	require.ErrorIs(t, err, ErrNoCommonVersion)
}
