package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeHome = `<html><head><title>Acme Corp</title>
<meta name="description" content="Acme makes payment rails &amp; ledgers"></head>
<body><nav>Menu</nav><h1>Welcome</h1><p>We build great products for banks, credit unions and fintech lenders across North America and Europe.</p>
<footer>Copyright 2024</footer></body></html>`

func servePage(t *testing.T, status int, header http.Header, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "RelgraphBot")
		for k, v := range header {
			w.Header()[k] = v
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLocalScraper_ExtractsContent(t *testing.T) {
	url := servePage(t, http.StatusOK, http.Header{"Content-Type": {"text/html"}}, acmeHome)

	result, err := NewLocalScraper().Scrape(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "local_http", result.Source)
	assert.Equal(t, "Acme Corp", result.Page.Title)
	assert.Equal(t, http.StatusOK, result.Page.StatusCode)

	md := result.Page.Markdown
	assert.True(t, strings.HasPrefix(md, "Acme makes payment rails & ledgers"))
	assert.Contains(t, md, "great products")
	assert.NotContains(t, md, "Menu")
	assert.NotContains(t, md, "Copyright 2024")
}

func TestLocalScraper_Rejects(t *testing.T) {
	long := "<p>" + strings.Repeat("Not found but plenty of words here. ", 10) + "</p>"
	tests := []struct {
		name      string
		status    int
		header    http.Header
		body      string
		wantErr   string
		wantBlock BlockType
	}{
		{"cloudflare", 403, http.Header{"Cf-Ray": {"abc123"}}, "Access denied", "blocked by cloudflare", BlockCloudflare},
		{"captcha", 200, nil, "Please complete the reCAPTCHA to continue", "blocked by captcha", BlockCaptcha},
		{"empty", 200, nil, "<html></html>", "empty page", BlockNone},
		{"not found", 404, nil, long, "status 404", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := servePage(t, tt.status, tt.header, tt.body)

			_, err := NewLocalScraper().Scrape(context.Background(), url)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var blocked *BlockedError
			if tt.wantBlock.Blocked() {
				require.True(t, errors.As(err, &blocked))
				assert.Equal(t, tt.wantBlock, blocked.Kind)
			} else {
				assert.False(t, errors.As(err, &blocked))
			}
		})
	}
}

func TestLocalScraper_Supports(t *testing.T) {
	s := NewLocalScraper()
	assert.Equal(t, "local_http", s.Name())
	assert.True(t, s.Supports("https://example.com"))
	assert.True(t, s.Supports("http://localhost"))
	assert.False(t, s.Supports("ftp://example.com"))
}

func TestLocalScraper_CustomClient(t *testing.T) {
	hc := &http.Client{}
	assert.Same(t, hc, NewLocalScraper(WithLocalHTTPClient(hc)).client)
}

func TestPageMetadata(t *testing.T) {
	assert.Equal(t, "KYB & onboarding", extractMetaDescription([]byte(`<meta name="description" content="KYB &amp; onboarding">`)))
	assert.Empty(t, extractMetaDescription([]byte(`<head></head>`)))
	assert.Equal(t, "My Page Title", extractTitle([]byte(`<title> My Page Title </title>`)))
	assert.Empty(t, extractTitle([]byte(`<body>no title</body>`)))
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []string
		notWant []string
	}{
		{
			name:    "chrome and tags",
			in:      `<style>body{color:red}</style><script>alert('hi')</script><h1>Hello</h1><p>World &amp; friends</p>`,
			want:    []string{"Hello", "World & friends"},
			notWant: []string{"alert", "color:red", "<h1>"},
		},
		{
			name: "entities",
			in:   `&lt;tag&gt; &amp; &quot;quoted&quot; &#39;apos&#39; &nbsp;space`,
			want: []string{"<tag>", `& "quoted"`, "'apos'", " space"},
		},
		{
			name:    "whitespace",
			in:      "Hello     world\n\n\n\n\nfoo",
			want:    []string{"Hello world\n\nfoo"},
			notWant: []string{"\n\n\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripHTML(tt.in)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, got, w)
			}
		})
	}
}
