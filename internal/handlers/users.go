package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-esewa-storefront/internal/users"
	"github.com/imrishuroy/go-esewa-storefront/internal/validation"
)

func registerUserRoutes(r *gin.Engine, d Deps, admin gin.HandlerFunc) {
	r.POST("/register", func(c *gin.Context) {
		var req validation.RegisterRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		_, err := d.Users.Register(c.Request.Context(), users.RegisterInput{
			Username:    req.Username,
			PhoneNumber: req.PhoneNumber,
			Address:     req.Address,
			Email:       req.Email,
			Password:    req.Password,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "Registration successful! Please check your email to activate your account.",
		})
	})

	r.GET("/activate/:token", func(c *gin.Context) {
		if err := d.Users.Activate(c.Request.Context(), c.Param("token")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Account activated successfully. You can now login."})
	})

	r.POST("/login", func(c *gin.Context) {
		var req validation.LoginRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		u, err := d.Users.Login(c.Request.Context(), req.Username, req.Password)
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"status": "Error", "message": "Invalid username or password"})
			return
		case errors.Is(err, users.ErrInactive):
			c.JSON(http.StatusForbidden, gin.H{"status": "Error", "message": "Please activate your account first"})
			return
		case err != nil:
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "Success", "userId": u.UserID, "role": u.Role})
	})

	r.POST("/forgot-password", func(c *gin.Context) {
		var req validation.ForgotPasswordRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		if err := d.Users.ForgotPassword(c.Request.Context(), req.Email); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Reset link sent to your email"})
	})

	r.POST("/reset-password/:token", func(c *gin.Context) {
		var req validation.ResetPasswordRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		if err := d.Users.ResetPassword(c.Request.Context(), c.Param("token"), req.NewPassword); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully. You can now login."})
	})

	r.GET("/users/:id/profile", func(c *gin.Context) {
		u, err := d.Users.Profile(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	})

	r.GET("/users/non-admins", admin, func(c *gin.Context) {
		list, err := d.Users.ListNonAdmins(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/admins", admin, func(c *gin.Context) {
		list, err := d.Users.ListAdmins(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.PUT("/users/:id/role", admin, func(c *gin.Context) {
		var req validation.UpdateRoleRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		u, err := d.Users.UpdateRole(c.Request.Context(), c.Param("id"), req.Role)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	})

	r.DELETE("/users/:id", admin, func(c *gin.Context) {
		if err := d.Users.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
	})
}
