package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	accountapp "github.com/controlhq/account-service/internal/application"
	"github.com/controlhq/account-service/pkg/response"
	"github.com/controlhq/account-service/pkg/validation"
)

// AccountHandler exposes the signup, login, change-password and dashboard
// endpoints the browser pages call. It holds no session state; the pages keep
// the logged-in account client-side and send its id back explicitly.
type AccountHandler struct {
	Svc    *accountapp.Service
	Logger *logrus.Logger
}

func NewAccountHandler(svc *accountapp.Service, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Logger: logger}
}

type signupRequest struct {
	FirstName       string `json:"first_name" binding:"required"`
	LastName        string `json:"last_name" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,pwd"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
	Plan            string `json:"plan"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	AccountID          string `json:"account_id" binding:"required"`
	CurrentPassword    string `json:"current_password" binding:"required"`
	NewPassword        string `json:"new_password" binding:"required,pwd"`
	ConfirmNewPassword string `json:"confirm_new_password" binding:"required,eqfield=NewPassword"`
}

// Signup POST /api/signup
func (h *AccountHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	res, err := h.Svc.SignUp(c.Request.Context(), accountapp.SignUpInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Plan:            req.Plan,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res, "account created")
}

// Login POST /api/login
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	account, err := h.Svc.Authenticate(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"account": account}, "login successful")
}

// ChangePassword POST /api/password/change
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	err := h.Svc.ChangePassword(c.Request.Context(), req.AccountID, req.CurrentPassword, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"changed": true}, "password updated")
}

// GetAccount GET /api/accounts/:id
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.Svc.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"account": account}, "account")
}

// Search GET /api/accounts/search?q=&size=
func (h *AccountHandler) Search(c *gin.Context) {
	q := c.Query("q")
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	results, err := h.Svc.SearchAccounts(c.Request.Context(), q, size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results}, "search results")
}

// writeError maps service errors onto the API envelope. Unknown identifier
// and wrong password share one message; store failures stay generic while the
// detail goes to the log.
func (h *AccountHandler) writeError(c *gin.Context, err error) {
	var verr *accountapp.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{verr.Field: verr.Reason})
	case errors.Is(err, accountapp.ErrInvalidCredentials):
		response.Error[any](c, http.StatusUnauthorized, "invalid user ID or password", nil)
	case errors.Is(err, accountapp.ErrAccountDeactivated):
		response.Error[any](c, http.StatusForbidden, "account is deactivated", nil)
	case errors.Is(err, accountapp.ErrCurrentPassword):
		response.Error[any](c, http.StatusBadRequest, "current password incorrect", nil)
	case errors.Is(err, accountapp.ErrAccountNotFound):
		response.Error[any](c, http.StatusNotFound, "account not found", nil)
	case errors.Is(err, accountapp.ErrEmailTaken):
		response.Error[any](c, http.StatusConflict, "email already registered", nil)
	default:
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("path", c.FullPath()).Error("store operation failed")
		}
		response.Error[any](c, http.StatusServiceUnavailable, "something went wrong, please try again", nil)
	}
}
