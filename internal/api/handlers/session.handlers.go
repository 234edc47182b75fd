package routes

import (
	"errors"
	"net/http"

	"zonewatch/internal/service/auth"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetupSessionHandlers registers sign-in endpoints for the device identity
func SetupSessionHandlers(router *gin.RouterGroup, d *Deps) {
	session := router.Group("/session")
	session.GET("", d.me)
	session.POST("/login", d.login)
	session.POST("/register", d.register)
	session.DELETE("", d.logout)
}

func (d *Deps) me(c *gin.Context) {
	u, err := d.Session.Me(c.Request.Context())
	if err != nil {
		authFail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (d *Deps) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := d.Session.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		authFail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (d *Deps) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := d.Session.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		authFail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

func (d *Deps) logout(c *gin.Context) {
	if err := d.Session.Logout(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func authFail(c *gin.Context, err error) {
	var aerr *auth.Error
	switch {
	case errors.As(err, &aerr):
		fail(c, aerr.Status, err)
	case errors.Is(err, auth.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, err)
	case errors.Is(err, auth.ErrNetwork):
		fail(c, http.StatusBadGateway, err)
	default:
		fail(c, http.StatusInternalServerError, err)
	}
}
