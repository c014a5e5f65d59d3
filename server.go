package presencecount

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/carlmjohnson/versioninfo"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const DefaultConnectRate = "120-M"

type Server struct {
	port     string
	server   *gin.Engine
	presence *Presence
	realtime Transport
	identity *MemoryIdentityProvider
	limiter  gin.HandlerFunc
}

// NewServerWithOptions serves the online count and the realtime hub endpoint.
// identity may be nil, in which case the login/logout routes are not registered.
func NewServerWithOptions(port string,
	presence *Presence,
	realtime Transport,
	identity *MemoryIdentityProvider,
	connectRate limiter.Rate) *Server {
	server := &Server{
		port:     port,
		server:   configureGin(),
		presence: presence,
		realtime: realtime,
		identity: identity,
		limiter:  mgin.NewMiddleware(limiter.New(memory.NewStore(), connectRate)),
	}
	server.setupRoutes()
	return server
}

func (s *Server) Run(port string) {
	log.Printf("Server running at :%v", port)
	log.Printf("Online users at %s", s.getOnlineUrl())
	log.Println(s.server.Run(":" + port))
}

func (s *Server) Handler() http.Handler {
	return s.server
}

func (s *Server) setupRoutes() {
	s.server.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/online")
	})

	s.server.GET("/online", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, s.presence.Publisher().Snapshot())
	})

	s.server.GET("/session", func(ctx *gin.Context) {
		info := s.presence.Session()
		ctx.JSON(http.StatusOK, gin.H{
			"generation": info.Generation,
			"identity":   info.Identity,
			"status":     info.Status.String(),
		})
	})

	if s.identity != nil {
		s.server.POST("/auth/login/:user", func(ctx *gin.Context) {
			user := ctx.Param("user")
			log.Println("login:", user)
			s.identity.Login(user)
			ctx.JSON(http.StatusOK, gin.H{"user": user})
		})
		s.server.POST("/auth/logout", func(ctx *gin.Context) {
			log.Println("logout")
			s.identity.Logout()
			ctx.JSON(http.StatusOK, gin.H{})
		})
	}

	s.server.GET("/realtime/:channel", s.limiter, func(c *gin.Context) {
		ServeRealtime(s.realtime, c.Param("channel"), c.Writer, c.Request)
	})

	s.server.GET("/events", func(c *gin.Context) {
		c.Header("Connection", "Keep-Alive")
		c.Header("Keep-Alive", "timeout=10, max=1000")

		ctx := c.Request.Context()
		publisher := s.presence.Publisher()

		myEvents := publisher.Subscribe()
		defer publisher.Unsubscribe(myEvents)

		streamOneEvent(c, NewSimpleEvent(StartedListeningEvent))
		streamOneEvent(c, NewEventWithParam(RevisionEvent, versioninfo.Revision))
		streamOneEvent(c, NewEventWithParam(LastSeenCountEvent, publisher.Snapshot()))

		// callback returns false on end of processing
		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				log.Printf("client disconnected")
				return false

			case event, ok := <-myEvents:
				if !ok {
					return false
				}
				streamOneEvent(c, event)
				return true
			}
		})
	})
}

func (s *Server) getOnlineUrl() string {
	baseUrl := "http://localhost"
	return fmt.Sprintf("%v:%v/online", baseUrl, s.port)
}

func configureGin() *gin.Engine {
	return gin.Default()
}

func streamOneEvent(c *gin.Context, event any) {
	c.JSON(http.StatusOK, event)
	c.String(http.StatusOK, "\n")
	c.Writer.(http.Flusher).Flush()
}
