package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/controlhq/account-service/internal/interface/http"
)

// AccountModule wires the account endpoints the signup, login and dashboard
// pages talk to:
//
//	POST /api/signup
//	POST /api/login
//	POST /api/password/change
//	GET  /api/accounts/:id
//	GET  /api/accounts/search
type AccountModule struct {
	Handler *handlers.AccountHandler
}

func NewAccountModule(h *handlers.AccountHandler) *AccountModule {
	return &AccountModule{Handler: h}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	rg.POST("/signup", m.Handler.Signup)
	rg.POST("/login", m.Handler.Login)
	rg.POST("/password/change", m.Handler.ChangePassword)

	rg.GET("/accounts/search", m.Handler.Search)
	rg.GET("/accounts/:id", m.Handler.GetAccount)
}
