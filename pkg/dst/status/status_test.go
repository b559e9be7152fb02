package status

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsOK(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	var s Status
	re.True(s.IsOK())
	re.Equal(CodeOK, s.Code())
	re.NoError(s.Err())
	re.Equal("OK", s.String())
}

func TestRetryability(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	re.True(New(CodeUnavailable, "").IsRetryable())
	for _, c := range []Code{CodeOK, CodeInvalidArgument, CodeInternal, CodeCancelled, CodeProtocolViolation} {
		re.False(New(c, "").IsRetryable(), "code %s", c)
	}
}

func TestErrRoundTrip(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	err := Errorf(CodeInvalidArgument, "bad frame: %d bytes", 3)
	re.EqualError(err, "InvalidArgument: bad frame: 3 bytes")

	got := FromError(err)
	re.Equal(CodeInvalidArgument, got.Code())
	re.Equal("bad frame: 3 bytes", got.Reason())
}

func TestFromErrorUnwrapsCause(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	err := errors.Wrap(Error(CodeUnavailable, "link down"), "send close")
	re.Equal(CodeUnavailable, FromError(err).Code())

	re.Equal(CodeOK, FromError(nil).Code())
	re.Equal(CodeInternal, FromError(errors.New("boom")).Code())
}
