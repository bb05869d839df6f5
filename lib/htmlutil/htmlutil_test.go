package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<td class="loc">
			İstanbul<br>
			   Kadıköy
		</td>`))
	require.NoError(t, err)
	require.Equal(t, "İstanbul Kadıköy", CleanText(doc.Find("td.loc")))
}

func TestResolve(t *testing.T) {
	base, err := url.Parse("https://www.sahibinden.com/bmw")
	require.NoError(t, err)

	require.Equal(t, "https://www.sahibinden.com/ilan/123", Resolve(base, "/ilan/123"))
	require.Equal(t, "https://other.example/x", Resolve(base, "https://other.example/x"))
	require.Equal(t, "", Resolve(base, "  "))
}

func TestFormValues(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<form>
			<input type="hidden" name="token" value="abc">
			<input type="text" name="code">
			<input type="checkbox" name="remember" value="on">
			<input type="checkbox" name="trust" value="yes" checked>
			<input type="submit" name="go" value="Gönder">
		</form>`))
	require.NoError(t, err)

	values := FormValues(doc.Find("form"))
	require.Equal(t, map[string]string{
		"token": "abc",
		"code":  "",
		"trust": "yes",
	}, values)
}
