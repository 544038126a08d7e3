package identity

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// issuanceDateLayout is the wire format for document issuance dates.
const issuanceDateLayout = "2006-01-02"

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// AuthController exposes the credential lifecycle over JSON endpoints.
type AuthController struct {
	Debug  bool
	Logger Logger
	Repo   RepositoryManager
	Auther Authenticator
	PreReg *PreRegistration
	HTTP   *RouteAuthenticator
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug enables payload dumps on stdout.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// NewAuthController wires the JSON controller. Repo, Auther, PreReg, and
// HTTP are mandatory.
func NewAuthController(repo RepositoryManager, auther Authenticator, prereg *PreRegistration, httpAuth *RouteAuthenticator, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Repo:   repo,
		Auther: auther,
		PreReg: prereg,
		HTTP:   httpAuth,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.PreReg == nil {
		panic("Missing PreRegistration flow in auth controller...")
	}

	if c.HTTP == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	return c
}

// RegisterRoutes registers the credential lifecycle routes.
func (a *AuthController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/auth/login", a.LoginPost)
	group.Post("/auth/logout", a.LogoutPost)
	group.Post("/auth/password-reset", a.PasswordResetPost)
	group.Post("/auth/password-reset/consume", a.PasswordResetConsume)
	group.Post("/users/pre-register/validate", a.PreRegisterValidate)
	group.Post("/users/pre-register/complete", a.PreRegisterComplete)
	group.Get("/users/activate-account/:token", a.ActivateAccount)
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns the account email
func (r LoginRequest) GetIdentifier() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.validationError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	token, err := a.Auther.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %v", err)
		// credential and lockout failures share one response shape
		return ctx.JSON(router.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "invalid credentials",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	raw, err := a.HTTP.TokenFromRequest(ctx)
	if err != nil {
		return a.invalidTokenError(ctx, err)
	}

	if err := a.Auther.Logout(ctx.Context(), raw); err != nil {
		a.Logger.Error("Logout error: %v", err)
		// a token we could not parse is the caller's fault, a store we
		// could not write is ours
		if IsMalformedError(err) || IsTokenExpiredError(err) {
			return a.invalidTokenError(ctx, err)
		}
		return a.jsonError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.validationError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	var res *InitializePasswordResetResponse

	req := InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo)

	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset init error: %v", err)
		return a.jsonError(ctx, err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(res))
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "password reset email sent",
	})
}

// PasswordResetConsumePayload holds the token and replacement password
type PasswordResetConsumePayload struct {
	Token           string `form:"token" json:"token"`
	Password        string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetConsumePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Token,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetConsume(ctx router.Context) error {
	payload := new(PasswordResetConsumePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.validationError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	input := FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo)

	if err := finalizePwdReset.Execute(ctx.Context(), input); err != nil {
		a.Logger.Error("password reset finalize error: %v", err)
		return a.jsonError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "password updated",
	})
}

// PreRegisterValidatePayload identifies the pre-seeded account by document
type PreRegisterValidatePayload struct {
	DocumentTypeID int    `form:"document_type_id" json:"document_type_id"`
	DocumentNumber string `form:"document_number" json:"document_number"`
	DateIssuance   string `form:"date_issuance_document" json:"date_issuance_document"`
}

// Validate will validate the payload
func (r PreRegisterValidatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.DocumentTypeID,
			validation.Required,
		),
		validation.Field(
			&r.DocumentNumber,
			validation.Required,
			validation.Length(5, 20),
			is.Digit,
		),
		validation.Field(
			&r.DateIssuance,
			validation.Required,
			validation.Date(issuanceDateLayout),
		),
	)
}

func (a *AuthController) PreRegisterValidate(ctx router.Context) error {
	payload := new(PreRegisterValidatePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.validationError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	issuedAt, err := time.Parse(issuanceDateLayout, payload.DateIssuance)
	if err != nil {
		return a.validationError(ctx, err)
	}

	token, err := a.PreReg.Validate(ctx.Context(), payload.DocumentTypeID, payload.DocumentNumber, issuedAt)
	if err != nil {
		a.Logger.Error("pre-register validate error: %v", err)
		return a.jsonError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token": token.Token,
	})
}

// PreRegisterCompletePayload binds credentials to a validated account
type PreRegisterCompletePayload struct {
	Token           string `form:"token" json:"token"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"password_confirmation" json:"password_confirmation"`
}

// Validate will validate the payload
func (r PreRegisterCompletePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Token,
			validation.Required,
		),
		validation.Field(
			&r.Email,
			validation.Required,
			validation.Length(6, 100),
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PreRegisterComplete(ctx router.Context) error {
	payload := new(PreRegisterCompletePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.validationError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	activation, err := a.PreReg.CompletePreRegister(ctx.Context(), payload.Token, payload.Email, payload.Password)
	if err != nil {
		a.Logger.Error("pre-register complete error: %v", err)
		return a.jsonError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token": activation.Token,
	})
}

func (a *AuthController) ActivateAccount(ctx router.Context) error {
	token := ctx.Param("token", "")
	if token == "" {
		return a.validationError(ctx, errors.New("missing activation token"))
	}

	if err := a.PreReg.Activate(ctx.Context(), token); err != nil {
		a.Logger.Error("activation error: %v", err)
		return a.jsonError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "account activated",
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func (a *AuthController) validationError(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// invalidTokenError reports a token the caller handed us that we could not
// accept. Always a 400: the caller can fix the request.
func (a *AuthController) invalidTokenError(ctx router.Context, err error) error {
	body := map[string]any{
		"success": false,
		"error":   "invalid token",
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return ctx.JSON(router.StatusBadRequest, body)
}

func (a *AuthController) jsonError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	body := map[string]any{
		"success": false,
		"error":   richErr.Message,
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return ctx.JSON(status, body)
}
