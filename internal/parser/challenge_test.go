package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type htmlSource struct {
	html string
	err  error
}

func (s htmlSource) Content() (string, error) { return s.html, s.err }

func TestIsChallengedHTML(t *testing.T) {
	detector := NewChallengeDetector()

	tests := []struct {
		name     string
		html     string
		expected bool
	}{
		{
			name:     "plain search results",
			html:     `<html><body><ul class="list-ul"><li class="columnContent"><h3 class="productName">MacBook Air</h3></li></ul></body></html>`,
			expected: false,
		},
		{
			name:     "turnstile response input",
			html:     `<html><body><form><input type="hidden" name="cf-turnstile-response" value=""></form></body></html>`,
			expected: true,
		},
		{
			name:     "captcha named input",
			html:     `<html><body><form><input name="Captcha_Answer"></form></body></html>`,
			expected: true,
		},
		{
			name:     "recaptcha textarea",
			html:     `<html><body><textarea name="g-recaptcha-response"></textarea></body></html>`,
			expected: true,
		},
		{
			name:     "verification text",
			html:     `<html><body><div><p>Verification in progress, please wait...</p></div></body></html>`,
			expected: true,
		},
		{
			name:     "turkish verification text",
			html:     `<html><body><h1>Doğrulama yapılıyor</h1></body></html>`,
			expected: true,
		},
		{
			name:     "text split across nodes",
			html:     `<html><body><span>Verifying you</span> <span>are human</span></body></html>`,
			expected: true,
		},
		{
			name:     "pattern only inside script",
			html:     `<html><body><script>var msg = "verification in progress";</script><p>Results</p></body></html>`,
			expected: false,
		},
		{
			name:     "pattern inside hidden element",
			html:     `<html><body><div style="display: none">Verification in progress</div><p>Results</p></body></html>`,
			expected: false,
		},
		{
			name:     "ordinary inputs",
			html:     `<html><body><form><input name="q" value="macbook"><input name="page"></form></body></html>`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detector.IsChallengedHTML(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsChallenged_ContentError(t *testing.T) {
	detector := NewChallengeDetector()

	_, err := detector.IsChallenged(htmlSource{err: errors.New("target closed")})
	assert.ErrorContains(t, err, "target closed")

	got, err := detector.IsChallenged(htmlSource{html: `<input name="h-captcha-response">`})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestNewChallengeDetectorWithoutPattern(t *testing.T) {
	detector := NewChallengeDetectorWith([]string{"challenge"}, nil)

	got, err := detector.IsChallengedHTML(`<body><p>Verification in progress</p></body>`)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = detector.IsChallengedHTML(`<body><input name="challenge"></body>`)
	require.NoError(t, err)
	assert.True(t, got)
}
