package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailmatrix/backend/internal/store"
)

type createFolderRequest struct {
	UserEmail  string `json:"userEmail" binding:"required,email"`
	FolderName string `json:"folderName" binding:"required"`
}

func (s *Server) createFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	folder, err := s.store.CreateFolder(c.Request.Context(), req.UserEmail, req.FolderName)
	if err != nil {
		if errors.Is(err, store.ErrFolderExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Folder already exists"})
			return
		}
		log.Printf("api: create folder: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Folder created", "folder": folder})
}

func (s *Server) listFolders(c *gin.Context) {
	folders, err := s.store.ListFolders(c.Request.Context(), c.Param("userEmail"))
	if err != nil {
		log.Printf("api: list folders: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	if folders == nil {
		folders = []store.Folder{}
	}
	c.JSON(http.StatusOK, folders)
}

func (s *Server) deleteFolder(c *gin.Context) {
	err := s.store.DeleteFolder(c.Request.Context(), c.Param("id"))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("api: delete folder: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to delete folder"})
		return
	}

	// Deleting an unknown id is a no-op, matching create/delete races
	// from multiple tabs.
	c.JSON(http.StatusOK, gin.H{"message": "Folder deleted"})
}
