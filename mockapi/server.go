// Package mockapi is a local stand-in for the report API collaborator, used
// for development and end-to-end tests. It speaks the same contract as the
// production backend: credential login issuing bearer tokens, authorized
// multipart report intake with generated case ids, report history and
// dashboard statistics.
package mockapi

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sabahroadcare/roadcare/auth"
	"github.com/sabahroadcare/roadcare/config"
	errs "github.com/sabahroadcare/roadcare/errors"
)

const tokenTTL = 24 * time.Hour

// User is an account that can log in and file reports.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex" json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
}

// Report is one filed road-damage case.
type Report struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CaseID         string    `gorm:"uniqueIndex" json:"case_id"`
	Email          string    `gorm:"index" json:"email"`
	District       string    `json:"district"`
	Description    string    `json:"description"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Address        string    `json:"address"`
	RoadName       string    `json:"road_name"`
	Status         string    `json:"status"`
	Severity       string    `json:"severity"`
	PhotoTop       string    `json:"photo_top"`
	PhotoFar       string    `json:"photo_far"`
	PhotoClose     string    `json:"photo_close"`
	SimilarReports int       `json:"similar_reports"`
	CreatedAt      time.Time `json:"created_at"`
}

// Server hosts the mock endpoints over a SQLite-backed store.
type Server struct {
	Config *config.Config
	DB     *gorm.DB
}

// New opens the store, migrates it and seeds the demo account.
func New(cfg *config.Config) (*Server, error) {
	db, err := gorm.Open(sqlite.Open(cfg.MockDBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening mock db")
	}
	s := &Server{Config: cfg, DB: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithDB wires an already-open handle, used by tests.
func NewWithDB(cfg *config.Config, db *gorm.DB) (*Server, error) {
	s := &Server{Config: cfg, DB: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) migrate() error {
	if err := s.DB.AutoMigrate(&User{}, &Report{}); err != nil {
		return errors.Wrap(err, "migrating mock db")
	}
	return s.seedUser(s.Config.MockUserEmail, s.Config.MockUserPassword)
}

func (s *Server) seedUser(email, password string) error {
	var count int64
	if err := s.DB.Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return errors.Wrap(err, "checking seed user")
	}
	if count > 0 {
		return nil
	}
	return s.createUser(email, password)
}

func (s *Server) createUser(email, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	user := User{Email: strings.ToLower(email), PasswordHash: string(hash)}
	return errors.Wrap(s.DB.Create(&user).Error, "creating user")
}

// Start runs the server until the process exits.
func (s *Server) Start() error {
	return s.Router().Run(fmt.Sprintf(":%d", s.Config.MockPort))
}

// Router assembles the gin engine.
func (s *Server) Router() *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if s.Config.Debug {
		r.Use(gin.Logger())
	}
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.MaxMultipartMemory = 32 << 20

	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: time.Minute, Limit: 20})
	limitLogins := ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many attempts, try again later"})
		},
		KeyFunc: func(c *gin.Context) string { return c.ClientIP() },
	})

	api := r.Group("/api")
	api.POST("/auth/login", limitLogins, s.handleLogin())
	api.POST("/auth/signup", limitLogins, s.handleSignup())

	authorized := api.Group("/")
	authorized.Use(s.authorize())
	authorized.POST("/homepage/report", s.handleSubmitReport())
	authorized.GET("/homepage/my-reports", s.handleMyReports())
	authorized.GET("/dashboard/stats", s.handleDashboardStats())

	return r
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "email and password are required"})
			return
		}

		var user User
		err := s.DB.First(&user, "email = ?", strings.ToLower(creds.Email)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": errs.ErrInternalServerError.Message})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
			return
		}

		token, err := s.issueToken(user.Email)
		if err != nil {
			log.Printf("issuing token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": errs.ErrInternalServerError.Message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
	}
}

func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "email and password are required"})
			return
		}
		if err := s.createUser(creds.Email, creds.Password); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "account created"})
	}
}

func (s *Server) issueToken(email string) (string, error) {
	claims := jwt.MapClaims{
		"email": email,
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.Config.JWTSecret))
}

// authorize validates the bearer token and stashes the caller's email.
func (s *Server) authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": errs.ErrUnauthorized.Message})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(s.Config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": errs.ErrUnauthorized.Message})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": errs.ErrUnauthorized.Message})
			return
		}
		email, _ := claims["email"].(string)
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": errs.ErrUnauthorized.Message})
			return
		}

		c.Set("email", email)
		c.Next()
	}
}
