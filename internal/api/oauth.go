package api

import (
	"context"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/mailmatrix/backend/internal/providers/outlook"
	"github.com/mailmatrix/backend/internal/store"
)

func (s *Server) googleLogin(c *gin.Context) {
	if s.google == nil || s.google.ClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "google oauth is not configured"})
		return
	}

	authURL := s.google.AuthCodeURL(
		uuid.NewString(),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	c.Redirect(http.StatusFound, authURL)
}

func (s *Server) googleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no code found in query"})
		return
	}

	ctx := c.Request.Context()

	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		log.Printf("api: google code exchange: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "oauth exchange failed"})
		return
	}

	email, err := s.identifyGoogleUser(ctx, token)
	if err != nil {
		log.Printf("api: identify google user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to identify user"})
		return
	}

	s.finishLogin(c, store.Credential{
		UserEmail:    email,
		Provider:     store.ProviderGoogle,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
}

func (s *Server) microsoftLogin(c *gin.Context) {
	if s.microsoft == nil || s.microsoft.ClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "microsoft oauth is not configured"})
		return
	}

	authURL := s.microsoft.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline)
	c.Redirect(http.StatusFound, authURL)
}

func (s *Server) microsoftCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no code found in query"})
		return
	}

	ctx := c.Request.Context()

	token, err := s.microsoft.Exchange(ctx, code)
	if err != nil {
		log.Printf("api: microsoft code exchange: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "oauth exchange failed"})
		return
	}

	cred := store.Credential{
		Provider:     store.ProviderMicrosoft,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	adapter, err := outlook.New(ctx, cred)
	if err != nil {
		log.Printf("api: create outlook adapter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to identify user"})
		return
	}

	email, err := adapter.UserEmail(ctx)
	if err != nil {
		log.Printf("api: identify microsoft user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to identify user"})
		return
	}

	cred.UserEmail = email
	s.finishLogin(c, cred)
}

// finishLogin upserts the credential, runs the first sync on the same
// code path as scheduled ticks, and hands the browser to the frontend.
func (s *Server) finishLogin(c *gin.Context, cred store.Credential) {
	ctx := c.Request.Context()

	if err := s.store.SaveCredential(ctx, cred); err != nil {
		log.Printf("api: save credential for %s: %v", cred.UserEmail, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})
		return
	}

	log.Printf("api: user authenticated: %s", cred.UserEmail)

	if err := s.scheduler.RunUser(ctx, cred); err != nil {
		// The login still succeeds; the next tick retries the sync.
		log.Printf("api: first sync for %s: %v", cred.UserEmail, err)
	}

	c.Redirect(http.StatusFound, s.frontendURL+"/dashboard?email="+url.QueryEscape(cred.UserEmail))
}

// identifyGoogleUser extracts the user's email, preferring the signed
// ID token over a userinfo round trip.
func (s *Server) identifyGoogleUser(ctx context.Context, token *oauth2.Token) (string, error) {
	if s.verifier != nil {
		if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
			email, err := s.verifier.Email(ctx, raw)
			if err == nil {
				return email, nil
			}
			log.Printf("api: verify ID token: %v", err)
		}
	}

	svc, err := googleoauth2.NewService(ctx, option.WithTokenSource(s.google.TokenSource(ctx, token)))
	if err != nil {
		return "", err
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", err
	}

	return info.Email, nil
}
