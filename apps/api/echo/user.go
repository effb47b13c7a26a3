package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/user"
)

type userApi struct {
	auth     *authenticator
	validate *validator.Validate
}

func registerUserAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	limit echo.MiddlewareFunc,
	auth *authenticator,
	validate *validator.Validate,
) {
	api := userApi{auth: auth, validate: validate}

	// admin portal
	ag := g.Group("/admin")
	ag.POST("/login", api.adminLogin, limit)
	ag.GET("/me", api.adminMe, jwt, adminMiddleware(user.AdminRoles...))

	// brewers
	bg := g.Group("/auth")
	bg.POST("/register", api.register, limit)
	bg.POST("/login", api.brewerLogin, limit)
	bg.POST("/token-refresh", api.refreshToken, jwt)

	mg := g.Group("/brewers/me", jwt, auth.brewerMiddleware())
	mg.GET("", api.me)
	mg.PATCH("", api.updateMe)
}

// Handlers

func (api *userApi) adminLogin(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	token, usr, err := api.auth.login(ctx, data.Username, data.Password)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() {
		return errAuthenticationFailed
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) adminMe(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, AdminMeResponse{OK: true, User: usr})
}

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewBrewer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBrewer")
	}
	data.Clean()
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.auth.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering brewer")
	}
	token, err := api.auth.token(usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, BrewerLoginResponse{Token: token, Brewer: usr})
}

func (api *userApi) brewerLogin(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	token, usr, err := api.auth.login(ctx, data.Username, data.Password)
	if err != nil {
		return err
	}
	if !usr.IsBrewer() {
		return errAuthenticationFailed
	}
	return ctx.JSON(http.StatusOK, BrewerLoginResponse{Token: token, Brewer: usr})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := contextBrewer(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	usr, err = api.auth.svc.UpdateProfile(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, usr)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	BrewerLoginResponse struct {
		Token  string    `json:"token"`
		Brewer user.User `json:"brewer"`
	}

	AdminMeResponse struct {
		OK   bool      `json:"ok"`
		User user.User `json:"user"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
