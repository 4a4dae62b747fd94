package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetriable(t *testing.T) {
	require.True(t, Retriable(ConnectionLost(errors.New(`reset by peer`))))
	require.False(t, Retriable(Unrecoverable(errors.New(`binlog purged`))))
	require.False(t, Retriable(errors.New(`some other error`)))
}

func TestConnectionLost_wraps(t *testing.T) {
	cause := errors.New(`reset by peer`)
	err := ConnectionLost(cause)
	require.ErrorIs(t, err, ErrConnectionLost)
	require.ErrorIs(t, err, cause)
}

func TestUnrecoverable_wraps(t *testing.T) {
	cause := errors.New(`binlog purged`)
	err := Unrecoverable(cause)
	require.ErrorIs(t, err, ErrUnrecoverable)
	require.ErrorIs(t, err, cause)
}
