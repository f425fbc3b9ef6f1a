package mockapi

import (
	"fmt"
	"io"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sabahroadcare/roadcare/models"
)

// nearbyRadiusMeters is the bounding box used for duplicate detection.
const nearbyRadiusMeters = 30.0

var photoSlots = []string{"top", "far", "close"}

func (s *Server) handleSubmitReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetString("email")

		district := strings.ToLower(strings.TrimSpace(c.PostForm("district")))
		if !models.IsValidDistrict(district) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Invalid district: %s", district)})
			return
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(c.PostForm("latitude")), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid latitude"})
			return
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(c.PostForm("longitude")), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid longitude"})
			return
		}
		address := strings.TrimSpace(c.PostForm("address"))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Address is required"})
			return
		}

		caseID, err := s.genCaseID(district)
		if err != nil {
			log.Printf("generating case id: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Unable to save report"})
			return
		}

		paths := make(map[string]string, len(photoSlots))
		for _, slot := range photoSlots {
			fileHeader, err := c.FormFile("photo_" + slot)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Missing required photo: photo_%s", slot)})
				return
			}
			path, err := s.savePhoto(fileHeader, caseID, slot)
			if err != nil {
				log.Printf("saving photo %s: %v", slot, err)
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Unable to save photo"})
				return
			}
			paths[slot] = path
		}

		similar, err := s.nearbyReportCount(lat, lng)
		if err != nil {
			log.Printf("counting nearby reports: %v", err)
			similar = 0
		}

		report := Report{
			CaseID:         caseID,
			Email:          email,
			District:       district,
			Description:    c.PostForm("description"),
			Latitude:       lat,
			Longitude:      lng,
			Address:        address,
			RoadName:       c.PostForm("road_name"),
			Status:         "Submitted",
			Severity:       severityFor(similar),
			PhotoTop:       paths["top"],
			PhotoFar:       paths["far"],
			PhotoClose:     paths["close"],
			SimilarReports: similar,
		}
		if err := s.DB.Create(&report).Error; err != nil {
			log.Printf("saving report: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Unable to save report"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"case_id":         report.CaseID,
			"status":          report.Status,
			"severity":        report.Severity,
			"similar_reports": report.SimilarReports,
		})
	}
}

// genCaseID builds ids like SRC_SAN_2025_09_0001: district code, year, month
// and a per-month sequence.
func (s *Server) genCaseID(district string) (string, error) {
	code := strings.ToUpper(strings.ReplaceAll(district, " ", ""))
	if len(code) > 3 {
		code = code[:3]
	}
	now := time.Now().UTC()
	prefix := fmt.Sprintf("SRC_%s_%s", code, now.Format("2006_01"))

	var count int64
	err := s.DB.Model(&Report{}).Where("case_id LIKE ?", prefix+"_%").Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%04d", prefix, count+1), nil
}

func (s *Server) savePhoto(fileHeader *multipart.FileHeader, caseID, slot string) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	caseDir := filepath.Join(s.Config.UploadDir, caseID)
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return "", err
	}

	ext := filepath.Ext(fileHeader.Filename)
	dest := filepath.Join(caseDir, fmt.Sprintf("%s_%s%s", slot, uuid.New().String(), ext))
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", err
	}
	return dest, nil
}

// nearbyReportCount approximates "same pothole" detection with a small
// bounding box around the point.
func (s *Server) nearbyReportCount(lat, lng float64) (int, error) {
	const degToMetersLat = 111_320.0
	degToMetersLng := 111_320.0 * math.Cos(lat*math.Pi/180)
	dlat := nearbyRadiusMeters / degToMetersLat
	dlng := nearbyRadiusMeters / degToMetersLng

	var count int64
	err := s.DB.Model(&Report{}).
		Where("latitude BETWEEN ? AND ?", lat-dlat, lat+dlat).
		Where("longitude BETWEEN ? AND ?", lng-dlng, lng+dlng).
		Count(&count).Error
	return int(count), err
}

func severityFor(similar int) string {
	switch {
	case similar >= 3:
		return "High"
	case similar >= 1:
		return "Medium"
	default:
		return "Low"
	}
}

func (s *Server) handleMyReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetString("email")

		var reports []Report
		err := s.DB.Where("email = ?", email).Order("created_at DESC").Find(&reports).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Unable to load reports"})
			return
		}

		out := make([]models.RecentSubmission, 0, len(reports))
		for _, r := range reports {
			out = append(out, models.RecentSubmission{
				ID:                 r.ID,
				CaseID:             r.CaseID,
				Location:           r.Address,
				Date:               r.CreatedAt,
				Status:             r.Status,
				SimilarReportCount: r.SimilarReports,
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) handleDashboardStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := s.DB.Model(&Report{})
		if district := strings.ToLower(strings.TrimSpace(c.Query("district"))); district != "" {
			query = query.Where("district = ?", district)
		}

		type statusCount struct {
			Status string
			Count  int
		}
		var rows []statusCount
		if err := query.Select("status, COUNT(*) as count").Group("status").Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Unable to load stats"})
			return
		}

		var stats models.DashboardStats
		for _, row := range rows {
			stats.TotalCases += row.Count
			switch row.Status {
			case "Submitted", "Under Review":
				stats.UnderReview += row.Count
			case "Approved":
				stats.Approved += row.Count
			case "In Progress":
				stats.InProgress += row.Count
			case "Completed":
				stats.Completed += row.Count
			case "Rejected":
				stats.Rejected += row.Count
			}
		}
		c.JSON(http.StatusOK, stats)
	}
}
