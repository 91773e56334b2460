package settings

import (
	"os"
	"path/filepath"

	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/taomfnbd/chamalloW/pkg/chat"
)

// DefaultRelayURL is the CORS relay used as the one-shot transport fallback
// when a direct webhook call fails.
const DefaultRelayURL = "https://corsproxy.io/?"

// Settings carries the endpoint and storage configuration for the client.
// Values come from the environment (CHAMALLOW_* variables) or the viper
// config file.
type Settings struct {
	LinkedInWebhook  string `mapstructure:"linkedin-webhook"`
	InstagramWebhook string `mapstructure:"instagram-webhook"`
	ImagesWebhook    string `mapstructure:"images-webhook"`
	AgentWebhook     string `mapstructure:"agent-webhook"`
	PlanningWebhook  string `mapstructure:"planning-webhook"`

	RelayURL    string `mapstructure:"relay-url"`
	HistoryFile string `mapstructure:"history-file"`
	SessionID   string `mapstructure:"session-id"`
}

// NewFromViper reads settings from the already-initialized viper instance
// and fills in defaults for the relay, history file and session id.
func NewFromViper() (*Settings, error) {
	ret := &Settings{}
	if err := viper.Unmarshal(ret); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal settings")
	}

	if ret.RelayURL == "" {
		ret.RelayURL = DefaultRelayURL
	}
	if ret.HistoryFile == "" {
		path, err := defaultHistoryFile()
		if err != nil {
			return nil, err
		}
		ret.HistoryFile = path
	}
	if ret.SessionID == "" {
		ret.SessionID = shortuuid.New()
	}

	return ret, nil
}

// EndpointFor returns the webhook endpoint bound to a platform, or an error
// when none is configured.
func (s *Settings) EndpointFor(platform chat.Platform) (string, error) {
	var url string
	switch platform {
	case chat.PlatformLinkedIn:
		url = s.LinkedInWebhook
	case chat.PlatformInstagram:
		url = s.InstagramWebhook
	case chat.PlatformImages:
		url = s.ImagesWebhook
	default:
		return "", errors.Errorf("unknown platform %q", platform)
	}
	if url == "" {
		return "", errors.Errorf("no webhook configured for platform %q", platform)
	}
	return url, nil
}

// Endpoints returns the per-platform webhook map, skipping unconfigured
// platforms.
func (s *Settings) Endpoints() map[chat.Platform]string {
	ret := map[chat.Platform]string{}
	for _, p := range chat.Platforms() {
		if url, err := s.EndpointFor(p); err == nil {
			ret[p] = url
		}
	}
	return ret
}

func defaultHistoryFile() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve user config dir")
	}
	return filepath.Join(configDir, "chamallow", "conversations.json"), nil
}
