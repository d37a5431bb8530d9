package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{uri: "models/rf.json", want: Location{Scheme: SchemeFile, Key: "models/rf.json"}},
		{uri: "file:///srv/models/rf.json", want: Location{Scheme: SchemeFile, Key: "/srv/models/rf.json"}},
		{uri: "s3://quake-models/prod/rf.json", want: Location{Scheme: SchemeS3, Bucket: "quake-models", Key: "prod/rf.json"}},
		{uri: "gs://quake-models/rf.json", want: Location{Scheme: SchemeGCS, Bucket: "quake-models", Key: "rf.json"}},
		{uri: "s3://bucket-only", wantErr: true},
		{uri: "ftp://host/rf.json", wantErr: true},
		{uri: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationSibling(t *testing.T) {
	remote := Location{Scheme: SchemeS3, Bucket: "b", Key: "prod/v3/bundle.json"}
	sib, err := remote.Sibling("model.onnx")
	require.NoError(t, err)
	assert.Equal(t, "s3://b/prod/v3/model.onnx", sib.String())

	local := Location{Scheme: SchemeFile, Key: filepath.Join("models", "bundle.json")}
	sib, err = local.Sibling("model.onnx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("models", "model.onnx"), sib.String())

	sib, err = remote.Sibling("gs://other/model.onnx")
	require.NoError(t, err)
	assert.Equal(t, SchemeGCS, sib.Scheme)
}

func TestLocalStorePutGet(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	data := []byte(`{"name":"rf"}`)
	require.NoError(t, s.Put(ctx, "bundles/rf.json", data))

	got, err := s.Get(ctx, "bundles/rf.json")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = os.Stat(filepath.Join(dir, "bundles", "rf.json"))
	assert.NoError(t, err)

	_, err = s.Get(ctx, "missing.json")
	assert.True(t, os.IsNotExist(err))
}

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rf.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))

	data, err := Fetch(context.Background(), p, Config{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	local, err := FetchToFile(context.Background(), Location{Scheme: SchemeFile, Key: p}, t.TempDir(), Config{})
	require.NoError(t, err)
	assert.Equal(t, p, local)
}
