package handlers

import (
	"net/http"

	"github.com/rohits-web03/esigned/internal/api/services"
	"github.com/rohits-web03/esigned/internal/utils"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register godoc
// @Summary Register a new account
// @Description Creates an unactivated account and emails a 6 digit activation code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body registerRequest true "Account details"
// @Success 201 {object} utils.Payload{data=services.RegisterResult}
// @Failure 400 {object} utils.Payload
// @Router /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "User registered successfully. Please check your email for activation code.",
		Data:    res,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login godoc
// @Summary Log in
// @Description Returns a bearer token for an activated account
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body loginRequest true "Credentials"
// @Success 200 {object} utils.Payload{data=services.LoginResult}
// @Failure 400 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Login successful",
		Data:    res,
	})
}

type activateRequest struct {
	Email          string `json:"email"`
	ActivationCode string `json:"activationCode"`
	Code           string `json:"code"`
}

// Activate godoc
// @Summary Activate an account
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body activateRequest true "Email and activation code"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Failure 429 {object} utils.Payload
// @Router /api/auth/activate [post]
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var in activateRequest
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	code := in.ActivationCode
	if code == "" {
		code = in.Code
	}

	if err := h.accounts.Activate(r.Context(), in.Email, code); err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Account activated successfully! You can now login.",
	})
}

type resendRequest struct {
	Email string `json:"email"`
}

// ResendActivation godoc
// @Summary Send a fresh activation code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body resendRequest true "Account email"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Failure 500 {object} utils.Payload
// @Router /api/auth/resend-activation [post]
func (h *Handler) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var in resendRequest
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.accounts.ResendCode(r.Context(), in.Email); err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Activation code sent successfully. Please check your email.",
	})
}

type updateAdminPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// UpdateAdminPassword godoc
// @Summary Change the admin password
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body updateAdminPasswordRequest true "New password, at least 6 characters"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Failure 403 {object} utils.Payload
// @Router /api/auth/update-admin-password [post]
func (h *Handler) UpdateAdminPassword(w http.ResponseWriter, r *http.Request) {
	var in updateAdminPasswordRequest
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.accounts.UpdateAdminPassword(r.Context(), in.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Admin password updated successfully",
	})
}
