package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/handlers"
	"github.com/example/bazaardial/internal/middleware"
	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/services"
	"github.com/example/bazaardial/internal/storage"
	"github.com/example/bazaardial/internal/utils"
)

// Auth routes allow this many requests per IP per window.
const (
	AuthBurst  = 5
	AuthWindow = 15 * time.Minute
)

// Deps are the services the HTTP surface is built from.
type Deps struct {
	Auth     *services.AuthService
	Listings *services.ListingService
	Profiles *services.ProfileService
	Tokens   *utils.TokenIssuer
	Users    repository.UserStore
	Blobs    storage.BlobStore
	Log      *zap.Logger

	AppName     string
	FrontendURL string
	// UploadDir is served under /uploads when set.
	UploadDir    string
	SecureCookie bool
	BodyLimit    int
	AuthLimiter  *middleware.IPRateLimiter
}

// NewApp builds the fiber app with the shared middleware stack and all routes.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      d.AppName,
		BodyLimit:    d.BodyLimit,
		ErrorHandler: handlers.ErrorHandler(d.Log),
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(d.Log))
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     d.FrontendURL,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	if d.UploadDir != "" {
		app.Static("/uploads", d.UploadDir)
	}

	Register(app, d)
	return app
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, d Deps) {
	uploads := handlers.NewUploader(d.Blobs)
	authHandler := handlers.NewAuthHandler(d.Auth, d.Tokens, d.SecureCookie)
	resetHandler := handlers.NewPasswordResetHandler(d.Auth)
	businessHandler := handlers.NewBusinessHandler(d.Listings, uploads, authHandler)
	profileHandler := handlers.NewProfileHandler(d.Profiles, uploads)

	limiter := d.AuthLimiter
	if limiter == nil {
		limiter = middleware.NewIPRateLimiter(AuthBurst, AuthWindow, d.Log)
	}
	limited := limiter.Handler()
	authenticate := middleware.Authenticate(d.Tokens, d.Users, d.Log)

	api := app.Group("/api")
	api.Get("/health", handlers.Health)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/verify-otp", limited, authHandler.VerifyOTP)
	auth.Post("/verify-email-otp", limited, authHandler.VerifyEmailOTP)
	auth.Post("/resend-otp", limited, authHandler.ResendOTP)
	auth.Post("/login", limited, authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)
	auth.Get("/check-username", authHandler.CheckUsername)

	auth.Post("/request-reset", limited, resetHandler.RequestReset)
	auth.Post("/verify-reset-otp", limited, resetHandler.VerifyResetOTP)
	auth.Post("/reset-password", limited, resetHandler.ResetPassword)

	// Listings
	business := api.Group("/business")
	business.Get("/", businessHandler.List)
	business.Get("/me", authenticate, businessHandler.Mine)
	business.Get("/:id", businessHandler.Get)
	business.Post("/", authenticate, businessHandler.Create)
	business.Put("/:id", authenticate, businessHandler.Update)
	business.Delete("/:id", authenticate, middleware.RequireRole(models.RoleOwner), businessHandler.Delete)

	// Protected routes
	user := api.Group("/user", authenticate)
	user.Get("/profile", profileHandler.GetProfile)
	user.Put("/profile", profileHandler.UpdateProfile)
	user.Put("/change-password", profileHandler.ChangePassword)
	user.Post("/avatar", profileHandler.UploadAvatar)
	user.Delete("/avatar", profileHandler.DeleteAvatar)
	user.Get("/stats", profileHandler.Stats)
}
