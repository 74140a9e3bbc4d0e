package telegram

import (
	"net/http"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/config"
)

type leveledLogrus struct {
	entry *log.Entry
}

func (l leveledLogrus) fields(keysAndValues []any) log.Fields {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}

// Error is logged as a warning, the request is usually retried.
func (l leveledLogrus) Error(msg string, keysAndValues ...any) {
	l.entry.WithFields(l.fields(keysAndValues)).Warn(msg)
}

func (l leveledLogrus) Warn(msg string, keysAndValues ...any) {
	l.entry.WithFields(l.fields(keysAndValues)).Warn(msg)
}

func (l leveledLogrus) Info(msg string, keysAndValues ...any) {
	l.entry.WithFields(l.fields(keysAndValues)).Debug(msg)
}

func (l leveledLogrus) Debug(msg string, keysAndValues ...any) {
	l.entry.WithFields(l.fields(keysAndValues)).Trace(msg)
}

// NewHTTPClient returns a client that retries connection errors, 5xx and 429 responses.
func NewHTTPClient(cfg config.Gateway) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = retryablehttp.LeveledLogger(leveledLogrus{entry: log.WithField("object", "BotAPIClient")})
	return retryClient.StandardClient()
}

func NewBotAPI(token string, cfg config.Gateway) (*api.BotAPI, error) {
	return api.NewBotAPIWithClient(token, api.APIEndpoint, NewHTTPClient(cfg))
}
