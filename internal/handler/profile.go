package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cradoe/leverpad/internal/apperr"
	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/request"
	"github.com/cradoe/leverpad/internal/response"
	"github.com/cradoe/leverpad/internal/validator"
)

const maxAvatarBytes = 5 << 20

var (
	ErrProfileNotFound = errors.New("user profile not found")
)

var avatarExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

type AvatarUploader interface {
	Configured() bool
	UploadAvatar(ctx context.Context, file io.Reader, walletAddress string) (string, error)
}

type ProfileHandler struct {
	ProfileRepo  repository.ProfileRepository
	PositionRepo repository.PositionRepository
	FileUploader AvatarUploader
	ErrHandler   *errHandler.ErrorRepository
}

func NewProfileHandler(handler *ProfileHandler) *ProfileHandler {
	return &ProfileHandler{
		ProfileRepo:  handler.ProfileRepo,
		PositionRepo: handler.PositionRepo,
		FileUploader: handler.FileUploader,
		ErrHandler:   handler.ErrHandler,
	}
}

// HandleSetupProfile creates the profile for a wallet the first time it
// connects. A second setup for the same wallet returns the existing profile.
func (h *ProfileHandler) HandleSetupProfile(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletAddress string              `json:"walletAddress"`
		Username      string              `json:"username"`
		Validator     validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.WalletAddress = strings.TrimSpace(input.WalletAddress)
	input.Username = strings.TrimSpace(input.Username)

	input.Validator.Check(validator.IsWalletAddress(input.WalletAddress), "A valid wallet address is required")
	if input.Username != "" {
		input.Validator.Check(validator.MinRunes(input.Username, 3), "Username must be at least 3 characters")
		input.Validator.Check(validator.MaxRunes(input.Username, 32), "Username must not be more than 32 characters")
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	profile := &models.Profile{
		WalletAddress: input.WalletAddress,
		Username:      sql.NullString{String: input.Username, Valid: input.Username != ""},
	}

	created, err := h.ProfileRepo.Insert(r.Context(), profile)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, found, err := h.ProfileRepo.GetByWallet(r.Context(), input.WalletAddress)
		if err != nil || !found {
			h.ErrHandler.ServerError(w, r, errors.Join(err, ErrProfileNotFound))
			return
		}

		err = response.JSONOkResponse(w, profileData(existing), "Profile already exists", nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = response.JSONCreatedResponse(w, profileData(created), "Profile created successfully")
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	walletAddress := r.PathValue("walletAddress")

	profile, found, err := h.ProfileRepo.GetByWallet(r.Context(), walletAddress)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		response.JSONErrorResponse(w, nil, "User profile not found", http.StatusNotFound, nil)
		return
	}

	locked, err := h.PositionRepo.LockedCollateral(r.Context(), walletAddress)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := profileData(profile).withAvailability(profile.SolBalance, locked)

	err = response.JSONOkResponse(w, data, "Profile fetched successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *ProfileHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	walletAddress := r.PathValue("walletAddress")

	if h.FileUploader == nil || !h.FileUploader.Configured() {
		h.ErrHandler.ServiceError(w, r, apperr.Configuration("Avatar uploads are not configured"))
		return
	}

	_, found, err := h.ProfileRepo.GetByWallet(r.Context(), walletAddress)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		response.JSONErrorResponse(w, nil, "User profile not found", http.StatusNotFound, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+1024)
	err = r.ParseMultipartForm(maxAvatarBytes)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, errors.New("invalid request data"))
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		h.ErrHandler.BadRequest(w, r, errors.New("error retrieving the file"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(avatarExtensions, ext) {
		h.ErrHandler.FailedValidation(w, r, []string{"Avatar must be a png, jpg, gif or webp image"})
		return
	}

	avatarURL, err := h.FileUploader.UploadAvatar(r.Context(), file, walletAddress)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = h.ProfileRepo.SetAvatar(r.Context(), walletAddress, avatarURL)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]string{
		"avatarUrl": avatarURL,
	}

	err = response.JSONOkResponse(w, data, "Avatar uploaded successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
