package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quayside/gatehouse/internal/gatehouse/mail"
	"github.com/quayside/gatehouse/internal/gatehouse/queue"
	"github.com/quayside/gatehouse/internal/gatehouse/service"
	"github.com/quayside/gatehouse/pkg/httpx"
	"github.com/quayside/gatehouse/pkg/slogx"
)

// DefaultRole is assigned to self-registered accounts. Elevated roles are
// provisioned out of band.
const DefaultRole = "member"

type AccountsHandler struct {
	Accounts *service.AccountService
	Mail     queue.Queue
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *AccountsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
			"A JSON body with email and password is required.")
		return
	}

	acc, err := h.Accounts.Register(ctx, body.Email, body.Password, DefaultRole)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			httpx.WriteError(w, http.StatusConflict, "email_taken",
				"An account with this email already exists.")
			return
		}
		log.Error("account registration failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to register the account.")
		return
	}

	if h.Mail != nil {
		msg := mail.Message{
			To:      acc.Email,
			Subject: "Welcome",
			Body:    "Your account has been created.",
		}
		if err := h.Mail.Enqueue(ctx, msg); err != nil {
			log.Warn("welcome email enqueue failed", "err", err)
		}
	}

	log.Info("account registered", "account_id", acc.ID)
	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		ID:    acc.ID,
		Email: acc.Email,
		Role:  acc.Role,
	})
}
