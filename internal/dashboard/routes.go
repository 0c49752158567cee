package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/avdonin/pitstop/internal/models"
	"github.com/avdonin/pitstop/internal/schedule"
)

const defaultListLimit = 100

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, finder *schedule.Finder) {
	router.GET("/healthz", handleHealth(db))
	router.GET("/api/requests", handleRequestList(db))
	router.GET("/api/requests/:id", handleRequestDetail(db))
	router.GET("/api/stats", handleStats(db))
	if finder != nil {
		router.GET("/api/availability", handleAvailability(finder))
	}
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleRequestList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
		if err != nil || limit <= 0 {
			limit = defaultListLimit
		}

		var requests []models.BookingRequest
		if err := db.Order("id DESC").Limit(limit).Find(&requests).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests, "count": len(requests)})
	}
}

func handleRequestDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
			return
		}

		var req models.BookingRequest
		if err := db.First(&req, uint(id)).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, req)
	}
}

// handleAvailability reports the nearest free slot for a given duration in
// hours, so the staff can quote a walk-in without opening the calendar.
func handleAvailability(finder *schedule.Finder) gin.HandlerFunc {
	return func(c *gin.Context) {
		hours, err := strconv.ParseFloat(c.DefaultQuery("hours", "1"), 64)
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}

		slot, err := finder.FirstSlotFrom(c.Request.Context(), finder.Now(), hours)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no free slot"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"start": slot.Start.Format(time.RFC3339),
			"end":   slot.End.Format(time.RFC3339),
		})
	}
}

func handleStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var total int64
		if err := db.Model(&models.BookingRequest{}).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		since := time.Now().AddDate(0, 0, -7)
		var lastWeek int64
		if err := db.Model(&models.BookingRequest{}).
			Where("created_at >= ?", since).Count(&lastWeek).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"total": total, "last_week": lastWeek})
	}
}
