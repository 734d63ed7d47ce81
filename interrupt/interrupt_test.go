package interrupt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigkillIsIdempotent(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Cancelled())
	assert.NotPanics(t, func() {
		tok.Sigkill("user requested stop")
		tok.Sigkill("second call should be a no-op")
	})
	assert.True(t, tok.Cancelled())
	assert.Equal(t, "user requested stop", tok.Reason())
}

func TestDoneChannelNeverBlocksAfterSigkill(t *testing.T) {
	tok := NewToken()
	tok.Sigkill("stop")
	select {
	case <-tok.Done():
	default:
		t.Fatal("expected Done() to be immediately readable after Sigkill")
	}
}

func TestRegistrySigkillReachesRegisteredToken(t *testing.T) {
	r := NewRegistry()
	tok := r.Register("c1")
	require.False(t, tok.Cancelled())

	ok := r.Sigkill("c1", "stop")
	assert.True(t, ok)
	assert.True(t, tok.Cancelled())
}

func TestRegistrySigkillUnknownCompletionReturnsFalse(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Sigkill("missing", "stop"))
}

func TestRegisterIsIdempotentPerCompletion(t *testing.T) {
	r := NewRegistry()
	tok1 := r.Register("c1")
	tok2 := r.Register("c1")
	assert.Same(t, tok1, tok2)
}

func TestReleaseForgetsToken(t *testing.T) {
	r := NewRegistry()
	r.Register("c1")
	r.Release("c1")
	_, ok := r.Lookup("c1")
	assert.False(t, ok)
}
