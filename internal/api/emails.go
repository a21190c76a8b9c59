package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mailmatrix/backend/internal/store"
)

type saveEmailRequest struct {
	UserEmail  string `json:"userEmail" binding:"required,email"`
	FolderName string `json:"folderName" binding:"required"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	Date       string `json:"date"`
	Body       string `json:"body"`
}

type bulkDeleteRequest struct {
	EmailIDs []string `json:"emailIds" binding:"required"`
}

func (s *Server) listEmails(c *gin.Context) {
	msgs, err := s.store.ListMessages(c.Request.Context(), c.Param("userEmail"), c.Param("folderName"))
	if err != nil {
		log.Printf("api: list emails: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) saveEmail(c *gin.Context) {
	var req saveEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Assign the id here so the response echoes the row the client can
	// later delete by.
	msg := store.Message{
		ID:         uuid.NewString(),
		UserEmail:  req.UserEmail,
		FolderName: req.FolderName,
		Subject:    req.Subject,
		From:       req.From,
		Date:       req.Date,
		Body:       req.Body,
	}

	inserted, err := s.store.InsertMessage(c.Request.Context(), msg)
	if err != nil {
		log.Printf("api: save email: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	if !inserted {
		c.JSON(http.StatusConflict, gin.H{"message": "Email already saved"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Email saved", "email": msg})
}

func (s *Server) deleteEmail(c *gin.Context) {
	err := s.store.DeleteMessage(c.Request.Context(), c.Param("emailId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Email not found"})
			return
		}
		log.Printf("api: delete email: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email deleted successfully"})
}

func (s *Server) bulkDeleteEmails(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.EmailIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email IDs array is required"})
		return
	}

	deleted, err := s.store.DeleteMessages(c.Request.Context(), req.EmailIDs)
	if err != nil {
		log.Printf("api: bulk delete emails: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("%d email(s) deleted successfully", deleted),
		"deletedCount": deleted,
	})
}
