package routes

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"callgrid/internal/coltype"
	"callgrid/internal/database"
	"callgrid/internal/gateway"
	"callgrid/internal/models"
)

// ServerInterface is what route groups need from the server.
type ServerInterface interface {
	GetDB() database.Service
	GetGateway() *gateway.Gateway
}

type Middleware struct {
	server ServerInterface
}

func NewMiddleware(server ServerInterface) *Middleware {
	return &Middleware{server: server}
}

// AuthMiddleware loads the session user into the request context.
func (m *Middleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userIDRaw := session.Get("user_id")

		if userIDRaw == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		userID, ok := userIDRaw.(int)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Invalid session data"})
			return
		}

		user, err := m.server.GetDB().Models().Users.Get(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found or database error"})
			return
		}

		c.Set("user", user) // Store user object in context
		c.Next()
	}
}

// RequireAdmin aborts unless the session user is an admin.
func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*models.User)
		if user.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.Next()
	}
}

// respondError maps engine errors onto HTTP responses. Anything
// permission-shaped answers not-found so existence is never leaked.
func respondError(c *gin.Context, err error) {
	var validationErr *coltype.ValidationError
	var importErr *database.ImportError

	switch {
	case errors.As(err, &importErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "import validation failed",
			"row":      importErr.Row,
			"data_key": importErr.DataKey,
			"reason":   importErr.Reason,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    validationErr.Error(),
			"data_key": validationErr.DataKey,
			"reason":   validationErr.Reason,
		})
	case errors.Is(err, database.ErrInvalidOptions),
		errors.Is(err, database.ErrMissingRequiredField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrDuplicateDataKey),
		errors.Is(err, database.ErrPoolInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrReadOnlyField):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, database.ErrForbidden),
		errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
