package channel_test

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagebridge/internal/channel"
)

func TestEnvelope_EncodeDecode(t *testing.T) {
	t.Run("invoke frames carry a correlation id", func(t *testing.T) {
		env, err := channel.NewInvoke("SYNC", "length")
		require.NoError(t, err)
		require.NotEmpty(t, env.ID)

		data, err := channel.EncodeEnvelope(env)
		require.NoError(t, err)

		decoded, err := channel.DecodeEnvelope(data)
		require.NoError(t, err)
		if diff := cmp.Diff(env.Args, decoded.Args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, env.ID, decoded.ID)

		req := decoded.Request()
		assert.True(t, req.Sync)
		op, err := req.Args.String(0)
		require.NoError(t, err)
		assert.Equal(t, "length", op)
	})

	t.Run("one way frames keep integer arguments", func(t *testing.T) {
		env, err := channel.NewSend("NAV", "goToOffset", -3)
		require.NoError(t, err)
		data, err := channel.EncodeEnvelope(env)
		require.NoError(t, err)

		decoded, err := channel.DecodeEnvelope(data)
		require.NoError(t, err)
		assert.False(t, decoded.Request().Sync)
		n, err := decoded.Args.Int(1)
		require.NoError(t, err)
		assert.Equal(t, -3, n)
	})

	t.Run("reply frames carry either a result or an error", func(t *testing.T) {
		ok, err := channel.NewReply("abc", 7, nil)
		require.NoError(t, err)
		assert.JSONEq(t, "7", string(ok.Result))
		assert.Empty(t, ok.Error)

		failed, err := channel.NewReply("abc", 7, errors.New("boom"))
		require.NoError(t, err)
		assert.Empty(t, failed.Result)
		assert.Equal(t, "boom", failed.Error)
	})
}

func TestDecodeEnvelope_Rejects(t *testing.T) {
	testCases := map[string]string{
		"not json":           `{`,
		"unknown kind":       `{"kind":"shout","topic":"x"}`,
		"send without topic": `{"kind":"send"}`,
		"invoke without id":  `{"kind":"invoke","topic":"x"}`,
		"reply without id":   `{"kind":"reply","result":1}`,
	}
	for name, frame := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := channel.DecodeEnvelope([]byte(frame))
			assert.Error(t, err)
		})
	}
}

func TestArgsAndReply(t *testing.T) {
	args, err := channel.EncodeArgs("hidden", 42)
	require.NoError(t, err)
	assert.Equal(t, 2, args.Len())

	_, err = args.String(5)
	assert.ErrorIs(t, err, channel.ErrMissingArgument)

	_, err = args.Int(0)
	assert.Error(t, err, "a string argument is not an integer")

	var empty channel.Reply
	_, err = empty.Int()
	assert.ErrorIs(t, err, channel.ErrEmptyReply)

	_, err = channel.Reply(`null`).Int()
	assert.ErrorIs(t, err, channel.ErrEmptyReply, "null must not read as zero")

	n, err := channel.Reply(`12`).Int()
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

// FuzzDecodeEnvelope feeds structured frames through the codec. Decoding
// must never panic and anything accepted must re-encode.
func FuzzDecodeEnvelope(f *testing.F) {
	f.Add([]byte(`{"kind":"push","topic":"t","args":["visible"]}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var env channel.Envelope
		if err := consumer.GenerateStruct(&env); err != nil {
			return
		}
		encoded, err := channel.EncodeEnvelope(&env)
		if err != nil {
			return
		}
		decoded, err := channel.DecodeEnvelope(encoded)
		if err != nil {
			return
		}
		_, err = channel.EncodeEnvelope(decoded)
		require.NoError(t, err)

		// Raw bytes straight from the fuzzer must not panic either.
		_, _ = channel.DecodeEnvelope(data)
	})
}
