package releases

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	for in, want := range map[string]Platform{
		"":        PlatformWindows,
		"Windows": PlatformWindows,
		"darwin":  PlatformMac,
		"macos":   PlatformMac,
		"linux":   PlatformLinux,
	} {
		got, err := ParsePlatform(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePlatform("amiga")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestLoadManifestOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets:
  mac:
    name: QuackQuery-universal.dmg
  linux:
    url: https://cdn.example.com/QuackQuery.AppImage
`), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, "QuackQuerySetup.exe", m.Assets[PlatformWindows].Name)
	assert.Equal(t, "QuackQuery-universal.dmg", m.Assets[PlatformMac].Name)
	assert.Equal(t, "releases/latest/QuackQuery.dmg", m.Assets[PlatformMac].Key)
	assert.Equal(t, "https://cdn.example.com/QuackQuery.AppImage", m.Assets[PlatformLinux].URL)

	def, err := LoadManifest("")
	require.NoError(t, err)
	assert.Equal(t, DefaultManifest(), def)
}

func TestLoadManifestRejectsUnknownPlatform(t *testing.T) {
	_, err := DefaultManifest().merge([]byte("assets:\n  beos:\n    name: x\n"))
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	_, err = DefaultManifest().merge([]byte("assets: [nope"))
	assert.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	m := DefaultManifest()
	m.Assets[PlatformLinux] = Asset{Name: "QuackQuery.AppImage", URL: "https://cdn.example.com/qq.AppImage"}
	s := StaticSource{Manifest: m}

	u, err := s.DownloadURL(context.Background(), PlatformLinux)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/qq.AppImage", u)

	_, err = s.DownloadURL(context.Background(), PlatformMac)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestGitHubSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/duck/quackquery/releases/latest", r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"tag_name":"v1.2.0","assets":[
			{"name":"QuackQuery.dmg","browser_download_url":"https://github.com/dl/QuackQuery.dmg"},
			{"name":"QuackQuerySetup.exe","browser_download_url":"https://github.com/dl/QuackQuerySetup.exe"}
		]}`))
	}))
	defer srv.Close()

	g := NewGitHubSource("duck", "quackquery", "gh-token", DefaultManifest())
	g.baseURL = srv.URL

	u, err := g.DownloadURL(context.Background(), PlatformWindows)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/dl/QuackQuerySetup.exe", u)

	_, err = g.DownloadURL(context.Background(), PlatformLinux)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestGitHubSourceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGitHubSource("duck", "quackquery", "", DefaultManifest())
	g.baseURL = srv.URL
	_, err := g.DownloadURL(context.Background(), PlatformWindows)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAssetNotFound)
}

type fakePresigner struct {
	input   *s3.GetObjectInput
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = in
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.example/" + *in.Key + "?X-Amz-Signature=abc", Method: http.MethodGet}, nil
}

func TestS3Source(t *testing.T) {
	p := &fakePresigner{}
	s := &S3Source{Bucket: "qq-releases", Manifest: DefaultManifest(), Presigner: p}

	u, err := s.DownloadURL(context.Background(), PlatformMac)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.example/releases/latest/QuackQuery.dmg?X-Amz-Signature=abc", u)
	assert.Equal(t, "qq-releases", *p.input.Bucket)
	assert.Equal(t, 15*time.Minute, p.expires)
	assert.Contains(t, *p.input.ResponseContentDisposition, "QuackQuery.dmg")
}
