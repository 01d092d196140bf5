package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"

	"github.com/ManuelReschke/MarketFox/internal/pkg/live"
	"github.com/ManuelReschke/MarketFox/internal/pkg/middleware"
	"github.com/ManuelReschke/MarketFox/internal/pkg/security"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

const (
	liveKeepAlive         = 25 * time.Second
	defaultStreamTokenTTL = 5 * time.Minute
)

// LiveTokenAuth resolves ?token= stream tokens into a caller identity.
func (mc *MarketController) LiveTokenAuth() fiber.Handler {
	return middleware.StreamToken(mc.streamSecret)
}

// HandleIssueLiveToken hands the caller a short lived token for opening the
// live stream from a browser EventSource.
func (mc *MarketController) HandleIssueLiveToken(c *fiber.Ctx) error {
	if mc.streamSecret == "" {
		return unavailable(c, "Stream tokens")
	}
	ttl := mc.streamTTL
	if ttl <= 0 {
		ttl = defaultStreamTokenTTL
	}
	uc := usercontext.GetUserContext(c)
	token, err := security.GenerateStreamToken(uc.UserID, uc.Role, ttl, mc.streamSecret)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "expires_in": int(ttl.Seconds())})
}

// HandleLive streams the caller's live updates as server-sent events. Each
// update is one "data:" frame; idle connections get a comment every
// liveKeepAlive so proxies keep them open.
func (mc *MarketController) HandleLive(c *fiber.Ctx) error {
	if mc.hub == nil {
		return unavailable(c, "Live updates")
	}
	userID := usercontext.GetUserID(c)

	// the request context ends when the handler returns, the stream outlives it
	sub, err := mc.hub.Subscribe(context.Background(), userID)
	if err != nil {
		log.Errorf("[Live] Subscribe for user %s failed: %v", userID, err)
		return unavailable(c, "Live updates")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		ticker := time.NewTicker(liveKeepAlive)
		defer ticker.Stop()

		if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil || w.Flush() != nil {
			return
		}
		for {
			select {
			case u, ok := <-sub.Updates():
				if !ok {
					return
				}
				if err := writeLiveUpdate(w, u); err != nil {
					log.Debugf("[Live] Stream of user %s closed: %v", userID, err)
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeLiveUpdate(w *bufio.Writer, u live.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, data); err != nil {
		return err
	}
	return w.Flush()
}
