package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var defaultChallengeInputs = []string{
	"captcha",
	"captcha-response",
	"g-recaptcha-response",
	"h-captcha-response",
	"cf-turnstile-response",
	"cf_chl_captcha_tk",
}

var defaultChallengeText = regexp.MustCompile(`(?i)(verification (is )?in progress|verifying you are (a )?human|checking (if the site connection is secure|your browser)|doğrulama (yapılıyor|işlemi devam ediyor)|güvenlik kontrolü)`)

// ChallengeDetector reports whether a loaded page is a bot-verification
// challenge instead of real content. It never modifies the page.
type ChallengeDetector struct {
	inputNames  map[string]bool
	textPattern *regexp.Regexp
}

func NewChallengeDetector() *ChallengeDetector {
	return NewChallengeDetectorWith(defaultChallengeInputs, defaultChallengeText)
}

func NewChallengeDetectorWith(inputNames []string, textPattern *regexp.Regexp) *ChallengeDetector {
	names := make(map[string]bool, len(inputNames))
	for _, n := range inputNames {
		names[strings.ToLower(n)] = true
	}
	return &ChallengeDetector{
		inputNames:  names,
		textPattern: textPattern,
	}
}

func (d *ChallengeDetector) IsChallenged(page ContentSource) (bool, error) {
	html, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}
	return d.IsChallengedHTML(html)
}

func (d *ChallengeDetector) IsChallengedHTML(html string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("failed to parse page: %w", err)
	}

	if d.hasChallengeInput(doc) {
		return true, nil
	}

	return d.textPattern != nil && d.textPattern.MatchString(visibleText(doc)), nil
}

func (d *ChallengeDetector) hasChallengeInput(doc *goquery.Document) bool {
	found := false
	doc.Find("input[name], textarea[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name := strings.ToLower(s.AttrOr("name", ""))
		if d.inputNames[name] || strings.Contains(name, "captcha") {
			found = true
			return false
		}
		return true
	})
	return found
}

// visibleText approximates rendered text: scripts, styles and nodes hidden
// through attributes or inline display:none are dropped.
func visibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template, [hidden], [aria-hidden='true']").Remove()
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			s.Remove()
		}
	})
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}
