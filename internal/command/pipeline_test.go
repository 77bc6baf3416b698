package command

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTag(t *testing.T) ulid.ULID {
	t.Helper()
	id, err := ulid.New(ulid.Timestamp(time.Now()), nil)
	require.NoError(t, err)
	return id
}

func TestPipelineSingleStageRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := Spawn(ctx, []string{"cat"}, newTag(t), nil)
	require.NoError(t, err)
	defer p.Close()

	stdin, stdout, err := p.TakeEndpoints()
	require.NoError(t, err)

	go func() {
		_, _ = stdin.Write([]byte("hello"))
		_ = stdin.Close()
	}()

	buf := make([]byte, 5)
	_, err = io.ReadFull(stdout, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestPipelineTakeEndpointsOnce(t *testing.T) {
	ctx := context.Background()
	p, err := Spawn(ctx, []string{"cat"}, newTag(t), nil)
	require.NoError(t, err)
	defer p.Close()

	_, _, err = p.TakeEndpoints()
	require.NoError(t, err)

	_, _, err = p.TakeEndpoints()
	assert.Error(t, err)
}

func TestPipelineMultiStage(t *testing.T) {
	ctx := context.Background()
	p, err := Spawn(ctx, []string{"cat", "rev"}, newTag(t), nil)
	require.NoError(t, err)
	defer p.Close()

	stdin, stdout, err := p.TakeEndpoints()
	require.NoError(t, err)

	go func() {
		_, _ = stdin.Write([]byte("abc\n"))
		_ = stdin.Close()
	}()

	buf := make([]byte, 4)
	_, err = io.ReadFull(stdout, buf)
	require.NoError(t, err)
	assert.Equal(t, "cba\n", string(buf))
}

func TestPipelineEmptyCommandsSharesPipe(t *testing.T) {
	ctx := context.Background()
	p, err := Spawn(ctx, nil, newTag(t), nil)
	require.NoError(t, err)
	defer p.Close()

	stdin, stdout, err := p.TakeEndpoints()
	require.NoError(t, err)

	go func() {
		_, _ = stdin.Write([]byte("x"))
		_ = stdin.Close()
	}()

	buf := make([]byte, 1)
	_, err = io.ReadFull(stdout, buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf))
}

func TestPipelineUnableToParse(t *testing.T) {
	ctx := context.Background()
	_, err := Spawn(ctx, []string{"echo 'unterminated"}, newTag(t), nil)
	require.Error(t, err)
}

func TestPipelineUnableToSpawn(t *testing.T) {
	ctx := context.Background()
	_, err := Spawn(ctx, []string{"this-binary-does-not-exist-anywhere"}, newTag(t), nil)
	require.Error(t, err)
}

func TestPipelineCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, err := Spawn(ctx, []string{"cat"}, newTag(t), nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
