package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/mailmatrix/backend/internal/auth"
	"github.com/mailmatrix/backend/internal/ingest"
	"github.com/mailmatrix/backend/internal/store"
)

// Server holds the HTTP surface: folder and email CRUD plus the OAuth
// redirect dance. All mail ingestion happens in the scheduler; handlers
// only read and write rows.
type Server struct {
	store       *store.Store
	scheduler   *ingest.Scheduler
	google      *oauth2.Config
	microsoft   *oauth2.Config
	verifier    *auth.IDTokenVerifier
	frontendURL string
}

// NewServer wires the HTTP server. verifier may be nil; the callback
// then falls back to the userinfo endpoint.
func NewServer(st *store.Store, scheduler *ingest.Scheduler, google, microsoft *oauth2.Config, verifier *auth.IDTokenVerifier, frontendURL string) *Server {
	return &Server{
		store:       st,
		scheduler:   scheduler,
		google:      google,
		microsoft:   microsoft,
		verifier:    verifier,
		frontendURL: frontendURL,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/api/test", func(c *gin.Context) {
		c.String(http.StatusOK, "API is working")
	})

	r.GET("/api/auth/google", s.googleLogin)
	r.GET("/api/auth/google/callback", s.googleCallback)
	r.GET("/api/auth/microsoft", s.microsoftLogin)
	r.GET("/api/auth/microsoft/callback", s.microsoftCallback)

	folder := r.Group("/api/folder")
	{
		folder.POST("/create", s.createFolder)
		folder.GET("/:userEmail", s.listFolders)
		folder.DELETE("/delete/:id", s.deleteFolder)
	}

	email := r.Group("/api/email")
	{
		email.GET("/emails/:userEmail/:folderName", s.listEmails)
		email.POST("/save", s.saveEmail)
		email.DELETE("/emails/:emailId", s.deleteEmail)
		email.POST("/emails/bulk-delete", s.bulkDeleteEmails)
	}

	return r
}
