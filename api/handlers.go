package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	pdfPkg "pdf_dewm/pdf"

	"github.com/gin-gonic/gin"
)

// HandleUpload stores a PDF in the temp directory and returns the
// stored path, so a remote UI can reference it in scan/remove calls.
func HandleUpload(c *gin.Context, config *Config) {
	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	// Validate PDF file
	if err := validatePDFFile(file, header, config.MaxFileSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ensureTempDir(config.TempDir); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create temp directory"})
		return
	}

	// Sanitize filename to prevent path traversal
	safeFilename := sanitizeFilename(header.Filename)
	uniqueID := generateUniqueID()
	filename := filepath.Join(config.TempDir, uniqueID+"_"+safeFilename)

	out, err := os.Create(filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer out.Close()

	_, err = out.ReadFrom(file)
	if err != nil {
		os.Remove(filename) // Clean up on error
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"filename": header.Filename, "path": filename})
}

// ScanRequest asks for watermark candidates across a set of files.
// Threshold is a page-presence ratio (0 < r <= 1) unless MinPages is
// set, in which case an absolute page count gates candidates. Pages
// optionally restricts the scan, e.g. "1,3-5".
type ScanRequest struct {
	Files    []string `json:"files" binding:"required"`
	Ratio    float64  `json:"ratio"`
	MinPages int      `json:"min_pages"`
	Pages    string   `json:"pages"`
}

func HandleScan(c *gin.Context, config *Config) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files specified"})
		return
	}

	threshold := pdfPkg.Threshold{Ratio: req.Ratio, Count: req.MinPages}
	if threshold.Count == 0 && threshold.Ratio == 0 {
		threshold.Ratio = pdfPkg.DefaultMinPageRatio
	}
	if threshold.Count == 0 && (threshold.Ratio <= 0 || threshold.Ratio > 1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ratio must be in (0, 1]"})
		return
	}
	if req.Pages != "" {
		if _, err := pdfPkg.ParsePageSpecifier(req.Pages); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("pages: %v", err)})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ScanTimeout)
	defer cancel()

	report, err := pdfPkg.ScanFiles(ctx, req.Files, threshold, req.Pages)
	if err != nil {
		log.Printf("scan failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// RemoveRequest applies confirmed watermark hashes to a set of files.
type RemoveRequest struct {
	Files   []string             `json:"files" binding:"required"`
	Hashes  []string             `json:"hashes" binding:"required"`
	Options pdfPkg.OutputOptions `json:"options"`
}

func HandleRemove(c *gin.Context, config *Config) {
	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Files) == 0 || len(req.Hashes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files and hashes are required"})
		return
	}

	selected := make(map[string]bool, len(req.Hashes))
	for _, h := range req.Hashes {
		selected[strings.TrimSpace(h)] = true
	}

	// Surface the dangerous in-place combination so the UI can warn.
	destructive := []string{}
	for _, f := range req.Files {
		if req.Options.IsDestructive(f) {
			destructive = append(destructive, f)
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), RemoveTimeout)
	defer cancel()

	results, err := pdfPkg.ApplyRemoval(ctx, req.Files, selected, req.Options)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"results": results}
	if len(destructive) > 0 {
		resp["overwritten_in_place"] = destructive
	}
	c.JSON(http.StatusOK, resp)
}

// ensureTempDir creates the temp directory if it doesn't exist
func ensureTempDir(tempDir string) error {
	return os.MkdirAll(tempDir, DefaultFilePermissions)
}

// sanitizeFilename removes path traversal attempts and dangerous characters
func sanitizeFilename(filename string) string {
	// Remove directory separators and path traversal attempts
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	// Get just the base filename to prevent path issues
	filename = filepath.Base(filename)
	filename = strings.TrimSpace(filename)

	if filename == "" {
		filename = "document.pdf"
	}
	return filename
}

// generateUniqueID generates a unique identifier for temp files
func generateUniqueID() string {
	// Use timestamp + random bytes for uniqueness
	b := make([]byte, 8)
	rand.Read(b)
	timestamp := time.Now().UnixNano()
	return fmt.Sprintf("%d_%s", timestamp, hex.EncodeToString(b))
}

// validatePDFFile checks if the file is a valid PDF by reading the header
func validatePDFFile(file multipart.File, header *multipart.FileHeader, maxSize int64) error {
	if header.Size > maxSize {
		return fmt.Errorf("file size %d exceeds maximum allowed %d bytes", header.Size, maxSize)
	}

	// Read first 4 bytes to check PDF header
	buffer := make([]byte, 4)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file header: %v", err)
	}

	if n >= 4 && string(buffer[:4]) != "%PDF" {
		return fmt.Errorf("invalid PDF file: header does not match")
	}

	// Seek back to beginning for subsequent reads
	_, err = file.Seek(0, 0)
	if err != nil {
		return fmt.Errorf("failed to reset file position: %v", err)
	}

	return nil
}
