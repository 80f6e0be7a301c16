package http

import (
	"context"
	"net/http"
	"sort"

	"github.com/dkeye/Broadcast/internal/adapters/signal"
	"github.com/dkeye/Broadcast/internal/config"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionRoomKey = "room"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// roomFromRequest picks ?room=, then the room remembered in the session, then the default.
// A valid room is stored back into the session.
func roomFromRequest(c *gin.Context) (domain.RoomName, error) {
	sess := sessions.Default(c)
	raw := c.Query("room")
	if raw == "" {
		if v, ok := sess.Get(sessionRoomKey).(string); ok {
			raw = v
		}
	}
	name, err := domain.NormalizeRoomName(raw)
	if err != nil {
		return "", err
	}
	sess.Set(sessionRoomKey, string(name))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	return name, nil
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *signal.Hub, rooms core.RoomManager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("BroadcastSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		room, err := roomFromRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Str("room", string(room)).Msg("ws signal endpoint hit")
		hub.ServeWS(ctx, c, room, c.GetString("client_token"))
	})

	// GET /api/rooms: every live room
	api.GET("/rooms", func(c *gin.Context) {
		list := rooms.List()
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		c.JSON(http.StatusOK, gin.H{"rooms": list})
	})

	api.GET("/rooms/:name", func(c *gin.Context) {
		room, ok := rooms.Get(domain.RoomName(c.Param("name")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room.Info())
	})

	api.GET("/whoami", func(c *gin.Context) {
		room, err := roomFromRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"client_token": c.GetString("client_token"),
			"room":         room,
		})
	})

	return r
}
