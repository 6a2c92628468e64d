package facade

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
	apphttp "github.com/chainsafe/zcash-miden-bridge/pkg/app/http"
)

var validate = validator.New()

const maxBodyBytes = 1 << 20

// HTTP wraps Service to expose it as chi routes.
type HTTP struct {
	svc    *Service
	logger *zap.Logger
}

// RegisterRoutes registers the facade's six operations on r.
func RegisterRoutes(r chi.Router, svc *Service, logger *zap.Logger) {
	h := &HTTP{svc: svc, logger: logger}

	r.Get("/deposit/hash", apphttp.HandleError(h.depositHash))
	r.Post("/account/balance", apphttp.HandleError(h.accountBalance))
	r.Post("/pool/balance", apphttp.HandleError(h.poolBalance))
	r.Post("/withdrawal/create", apphttp.HandleError(h.withdrawalCreate))
	r.Post("/note/consume", apphttp.HandleError(h.noteConsume))
	r.Post("/account/create", apphttp.HandleError(h.accountCreate))
}

type depositHashResponse struct {
	Success       bool   `json:"success"`
	RecipientHash string `json:"recipient_hash"`
}

func (h *HTTP) depositHash(w http.ResponseWriter, r *http.Request) error {
	accountID := r.URL.Query().Get("account_id")
	secret := r.URL.Query().Get("secret")

	recipientHash, err := h.svc.DepositHash(r.Context(), accountID, secret)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, depositHashResponse{
		Success:       true,
		RecipientHash: "0x" + hex.EncodeToString(recipientHash[:]),
	})
	return nil
}

type accountBalanceRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

type balanceResponse struct {
	Success bool  `json:"success"`
	Balance int64 `json:"balance"`
}

func (h *HTTP) accountBalance(w http.ResponseWriter, r *http.Request) error {
	var req accountBalanceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return err
	}

	balance, err := h.svc.AccountBalance(r.Context(), req.AccountID)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, balanceResponse{Success: true, Balance: balance})
	return nil
}

func (h *HTTP) poolBalance(w http.ResponseWriter, r *http.Request) error {
	balance, err := h.svc.PoolBalance(r.Context())
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, balanceResponse{Success: true, Balance: balance})
	return nil
}

type withdrawalCreateRequest struct {
	AccountID    string `json:"account_id" validate:"required"`
	ZcashAddress string `json:"zcash_address" validate:"required"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
}

type withdrawalCreateResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
}

func (h *HTTP) withdrawalCreate(w http.ResponseWriter, r *http.Request) error {
	var req withdrawalCreateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return err
	}

	id, err := h.svc.CreateWithdrawal(r.Context(), req.AccountID, req.ZcashAddress, req.Amount)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, withdrawalCreateResponse{Success: true, TransactionID: id})
	return nil
}

type noteConsumeRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Secret    string `json:"secret" validate:"required"`
	FaucetID  string `json:"faucet_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
}

type noteConsumeResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	NoteID        string `json:"note_id"`
}

func (h *HTTP) noteConsume(w http.ResponseWriter, r *http.Request) error {
	var req noteConsumeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return err
	}

	txid, noteID, err := h.svc.ConsumeNote(r.Context(), req.AccountID, req.Secret, req.FaucetID, req.Amount)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, noteConsumeResponse{Success: true, TransactionID: txid, NoteID: noteID})
	return nil
}

type accountCreateResponse struct {
	Success      bool   `json:"success"`
	AccountID    string `json:"account_id"`
	AccountIDHex string `json:"account_id_hex"`
}

func (h *HTTP) accountCreate(w http.ResponseWriter, r *http.Request) error {
	bech, hexID, err := h.svc.CreateAccount(r.Context())
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, accountCreateResponse{Success: true, AccountID: bech, AccountIDHex: hexID})
	return nil
}

func decodeAndValidate(r *http.Request, req any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return bridgeerr.New(bridgeerr.KindMalformedMemo, "failed to read request body", err)
	}
	if err := json.Unmarshal(body, req); err != nil {
		return bridgeerr.New(bridgeerr.KindMalformedMemo, "invalid JSON", err)
	}
	if err := validate.Struct(req); err != nil {
		return bridgeerr.New(bridgeerr.KindMalformedMemo, "request validation failed", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
