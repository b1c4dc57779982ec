package twitter

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/XinsongDu/Twitter-Tracker/pkg/auth"
	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/proxy"
	"github.com/XinsongDu/Twitter-Tracker/pkg/retry"
)

// Factory builds authorized clients per credential set and proxy.
// App-only tokens are exchanged once per credential set and shared by
// every client of that set. Each exchange goes through the transport of
// the client that needs the token.
type Factory struct {
	cfg    config.PlatformConfig
	logger logger.Logger
	retry  *retry.Config

	mu     sync.Mutex
	tokens map[string]*cachedToken
}

// cachedToken holds the token of one credential set. mu serializes
// exchanges so concurrent requests do not race to the token endpoint.
type cachedToken struct {
	mu  sync.Mutex
	tok *oauth2.Token
}

// NewFactory creates a client factory
func NewFactory(cfg config.PlatformConfig, log logger.Logger) *Factory {
	if log == nil {
		log = logger.GetLogger()
	}
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.TokenRetries
	rc.RetryIf = retryableTokenError
	rc.Logger = log.WithField("component", "token")

	return &Factory{
		cfg:    cfg,
		logger: log,
		retry:  rc,
		tokens: make(map[string]*cachedToken),
	}
}

// Client returns an API client for cred, routed through ep when non-nil
func (f *Factory) Client(cred auth.CredentialSet, ep *proxy.Endpoint) (*Client, error) {
	base, err := transport(ep)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   f.cfg.RequestTimeout,
		Transport: &authTransport{factory: f, cred: cred, base: base},
	}

	log := f.logger.WithField("credentials", cred.Name)
	if ep != nil {
		log = log.WithField("proxy", ep.Address)
	}
	return NewClient(httpClient, Options{
		BaseURL:           f.cfg.BaseURL,
		UserAgent:         f.cfg.UserAgent,
		RequestsPerSecond: f.cfg.RequestsPerSecond,
	}, log), nil
}

// Token returns a valid token for cred. A configured bearer token skips the
// exchange. Otherwise the cached token is reused until it expires and a new
// one is fetched through base, bounded by ctx.
func (f *Factory) Token(ctx context.Context, cred auth.CredentialSet, base http.RoundTripper) (*oauth2.Token, error) {
	if cred.BearerToken != "" {
		return &oauth2.Token{AccessToken: cred.BearerToken, TokenType: "Bearer"}, nil
	}

	f.mu.Lock()
	entry, ok := f.tokens[cred.Name]
	if !ok {
		entry = &cachedToken{}
		f.tokens[cred.Name] = entry
	}
	f.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.tok.Valid() {
		return entry.tok, nil
	}

	cc := &clientcredentials.Config{
		ClientID:     cred.AppKey,
		ClientSecret: cred.AppSecret,
		TokenURL:     f.cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Timeout:   f.cfg.RequestTimeout,
		Transport: base,
	})
	tok, err := retry.DoWithResult(exchangeCtx, cc.Token, f.retry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.NewTransient(errs.ErrorTypeAuth, 0, "token exchange failed for "+cred.Name, err)
	}
	entry.tok = tok
	return tok, nil
}

// authTransport attaches the credential set's token to each request
type authTransport struct {
	factory *Factory
	cred    auth.CredentialSet
	base    http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.factory.Token(req.Context(), t.cred, t.base)
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	authed := req.Clone(req.Context())
	tok.SetAuthHeader(authed)
	return t.base.RoundTrip(authed)
}

// retryableTokenError stops on client errors other than 429
func retryableTokenError(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return errs.IsRetryableStatusCode(re.Response.StatusCode)
	}
	return retry.DefaultRetryIf(err)
}

// transport builds the base round tripper, proxied when ep is set
func transport(ep *proxy.Endpoint) (http.RoundTripper, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if ep == nil {
		return t, nil
	}
	u, err := ep.URL()
	if err != nil {
		return nil, &errs.ProxyError{Address: ep.Address, Err: err}
	}
	t.Proxy = http.ProxyURL(u)
	return t, nil
}
