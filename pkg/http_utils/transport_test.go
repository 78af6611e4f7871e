package http_utils

import (
	"net/http"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateHttpClientDoesNotFollowRedirects(t *testing.T) {
	client := CreateHttpClient()
	require.NotNil(t, client.CheckRedirect)

	err := client.CheckRedirect(nil, nil)
	assert.Equal(t, http.ErrUseLastResponse, err)
}

func TestSetStandardHeaders(t *testing.T) {
	viper.Set("navigation.user_agent", "kestrel-test")
	viper.Set("navigation.bug_bounty_header", "bb/kestrel")
	defer func() {
		viper.Set("navigation.user_agent", "")
		viper.Set("navigation.bug_bounty_header", "")
	}()

	req, err := http.NewRequest(http.MethodGet, "https://acme.com", nil)
	require.NoError(t, err)

	SetStandardHeaders(req)
	assert.Equal(t, "kestrel-test", req.Header.Get("User-Agent"))
	assert.Equal(t, "bb/kestrel", req.Header.Get("X-Bug-Bounty"))
}
