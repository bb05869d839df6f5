package sahibinden

import (
	"net/url"
	"testing"

	"sahibinden-scraper/lib/webpage"

	_ "embed"

	"github.com/stretchr/testify/require"
)

//go:embed testdata/challenge.html
var challengePage []byte

//go:embed testdata/otp.html
var otpPage []byte

func pageAt(t *testing.T, address string, status int, body []byte) webpage.Page {
	t.Helper()
	u, err := url.Parse(address)
	require.NoError(t, err)
	return webpage.Page{URL: u, Status: status, Body: body}
}

func TestInspector(t *testing.T) {
	inspector := NewInspector("")

	challenge := pageAt(t, "https://www.sahibinden.com/bmw", 403, challengePage)
	require.True(t, inspector.IsChallenge(challenge))
	require.False(t, inspector.IsRateLimited(challenge))
	require.False(t, inspector.IsLogin(challenge))

	listingResults := pageAt(t, "https://www.sahibinden.com/bmw", 200, listingPage)
	require.False(t, inspector.IsChallenge(listingResults))
	require.False(t, inspector.IsRateLimited(listingResults))
	require.True(t, inspector.HasContent(listingResults, "tr.searchResultsItem"))
	require.False(t, inspector.HasContent(listingResults, "div.custom-area"))
	require.True(t, inspector.HasContent(listingResults, ""))

	limited := pageAt(t, "https://www.sahibinden.com/bmw", 429, []byte("<html></html>"))
	require.True(t, inspector.IsRateLimited(limited))

	limitedText := pageAt(t, "https://www.sahibinden.com/bmw", 200, []byte("<html><body><h1>Çok Fazla İstek Gönderdiniz</h1></body></html>"))
	require.True(t, inspector.IsRateLimited(limitedText))

	login := pageAt(t, "https://secure.sahibinden.com/giris", 200, []byte("<html><form><input name='username'></form></html>"))
	require.True(t, inspector.IsLogin(login))
	require.False(t, inspector.HasOTPForm(login))

	otp := pageAt(t, "https://secure.sahibinden.com/giris/dogrula", 200, otpPage)
	require.True(t, inspector.IsLogin(otp))
	require.True(t, inspector.HasOTPForm(otp))

	localLogin := pageAt(t, "http://127.0.0.1:8080/login?return=/bmw", 200, nil)
	require.True(t, inspector.IsLogin(localLogin))

	require.False(t, inspector.IsLogin(webpage.Page{}))
}
