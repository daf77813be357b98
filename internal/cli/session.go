package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/habitere/hbmsg/internal/api"
	"github.com/habitere/hbmsg/internal/cache"
	"github.com/habitere/hbmsg/internal/config"
	"github.com/habitere/hbmsg/internal/logging"
	"github.com/habitere/hbmsg/internal/messaging"
	"github.com/habitere/hbmsg/internal/state"
)

// buildSession wires the API client, snapshot cache, and UI state into a
// session. The returned cleanup closes whatever was opened; it is safe to
// call after a partial failure.
func buildSession(cfg *config.Config) (*messaging.Session, *state.Manager, func(), error) {
	if strings.TrimSpace(cfg.Backend.Token) == "" {
		return nil, nil, nil, fmt.Errorf("backend.token is not set; configure it or export HBMSG_BACKEND_TOKEN")
	}
	if strings.TrimSpace(cfg.Backend.UserID) == "" {
		return nil, nil, nil, fmt.Errorf("backend.user_id is not set; configure it or export HBMSG_BACKEND_USER_ID")
	}

	client := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token,
		api.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}))

	opts := []messaging.SessionOption{}
	var store *cache.Store
	if strings.TrimSpace(cfg.Cache.Path) != "" {
		opened, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			// The client works without a snapshot cache, just with a blank
			// screen until the first refresh.
			logger := logging.Component("cli")
			logger.Warn().Err(err).Msg("snapshot cache unavailable")
		} else {
			store = opened
			opts = append(opts, messaging.WithCache(store))
		}
	}

	uiState := state.New(statePath(cfg))
	if err := uiState.Load(); err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).Msg("ui state unavailable, starting fresh")
	}
	opts = append(opts, messaging.WithDrafts(uiState))

	session := messaging.NewSession(client, cfg.Backend.UserID, opts...)

	cleanup := func() {
		_ = uiState.Close()
		if store != nil {
			_ = store.Close()
		}
	}
	return session, uiState, cleanup, nil
}
