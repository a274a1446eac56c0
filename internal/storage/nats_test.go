package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "urlwatch/pkg/logx"
)

type fakeBucket map[string][]byte

func (f fakeBucket) get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := f[key]
	return v, ok, nil
}

func (f fakeBucket) put(_ context.Context, key string, b []byte) error {
	f[key] = append([]byte(nil), b...)
	return nil
}

func TestNATSStoreNamespaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	digests, content := fakeBucket{}, fakeBucket{}
	st := &natsStore{log: logx.Nop(), digests: digests, content: content}

	_, ok, err := st.ReadDigest(ctx, Key(1))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.WriteContent(ctx, Key(1), []byte("page")))
	require.NoError(t, st.WriteDigest(ctx, Key(1), "d"))

	assert.Equal(t, []byte("d"), digests["url_1"])
	assert.Equal(t, []byte("page"), content["url_1"])

	d, ok, err := st.ReadDigest(ctx, Key(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d", d)
	require.NoError(t, st.Close())
}

func TestBucketNames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, kv, obj string
	}{
		{in: "watch", kv: "watch-digests", obj: "watch-data"},
		{in: "my bucket/prod", kv: "my-bucket-prod-digests", obj: "my-bucket-prod-data"},
		{in: "  ", kv: "urlwatch-digests", obj: "urlwatch-data"},
	}
	for _, tt := range tests {
		kv, obj := BucketNames(tt.in)
		assert.Equal(t, tt.kv, kv, tt.in)
		assert.Equal(t, tt.obj, obj, tt.in)
	}
}
