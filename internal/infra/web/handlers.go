package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/infra/metrics"
	"esim-reseller/internal/usecase"
)

const maxWebhookBody = 64 << 10

// ===== payment callback =====

func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	ev, err := s.gateway.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		metrics.IncWebhookEvent("unknown", "rejected")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := s.webhookUC.Process(r.Context(), ev); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			// Malformed but authentic; a retry can never succeed.
			metrics.IncWebhookEvent(ev.Type, "rejected")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, domain.ErrConflictingSettlement) {
			// The order already reached a different terminal state, e.g. a
			// stale success for a canceled order. The order is immutable now,
			// so the delivery is acknowledged to stop the retry loop.
			s.log.Warn().Str("event_id", ev.ID).Str("type", ev.Type).
				Msg("webhook conflicts with settled order, acknowledged")
			metrics.IncWebhookEvent(ev.Type, "conflict")
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		metrics.IncWebhookEvent(ev.Type, "error")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	metrics.IncWebhookEvent(ev.Type, "processed")
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// ===== purchases =====

type assignRequest struct {
	BundleCode    string `json:"bundle_code"`
	ICCID         string `json:"iccid,omitempty"`
	PromoCode     string `json:"promo_code,omitempty"`
	PayFromWallet bool   `json:"pay_from_wallet,omitempty"`
	PayWithDCB    bool   `json:"pay_with_dcb,omitempty"`
	MSISDN        string `json:"msisdn,omitempty"`
}

type assignResponse struct {
	OrderID        string `json:"order_id"`
	Amount         int64  `json:"amount"`
	ModifiedAmount int64  `json:"modified_amount"`
	Currency       string `json:"currency"`
	ClientSecret   string `json:"client_secret,omitempty"`
	IntentID       string `json:"payment_intent_id,omitempty"`
	PaidFromWallet bool   `json:"paid_from_wallet"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	s.assign(w, r, false)
}

func (s *Server) handleAssignTopUp(w http.ResponseWriter, r *http.Request) {
	s.assign(w, r, true)
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request, topUp bool) {
	claims := ClaimsFrom(r.Context())
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.BundleCode == "" {
		http.Error(w, "bundle_code is required", http.StatusUnprocessableEntity)
		return
	}

	// One in-flight purchase per user; a double-tap must not open two
	// payment legs.
	if s.locker != nil {
		token, err := s.locker.TryLock(r.Context(), "purchase:"+claims.Subject, 30*time.Second)
		if err != nil {
			http.Error(w, "Another purchase is in progress", http.StatusTooManyRequests)
			return
		}
		defer func() { _ = s.locker.Unlock(r.Context(), "purchase:"+claims.Subject, token) }()
	}

	params := usecase.AssignParams{
		UserID:        claims.Subject,
		CustomerEmail: claims.Email,
		BundleCode:    req.BundleCode,
		ICCID:         req.ICCID,
		PromoCode:     req.PromoCode,
		PayFromWallet: req.PayFromWallet,
		PayWithDCB:    req.PayWithDCB,
		MSISDN:        req.MSISDN,
	}
	var res *usecase.AssignResult
	var err error
	if topUp {
		res, err = s.orderUC.AssignTopUp(r.Context(), params)
	} else {
		res, err = s.orderUC.Assign(r.Context(), params)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PromoCode != "" {
		metrics.IncReward("promotion", "pending")
	}
	orderType := string(model.OrderTypeAssign)
	if topUp {
		orderType = string(model.OrderTypeBundleTopUp)
	}
	if res.PaidFromWallet {
		metrics.IncOrder(orderType, "settled")
		metrics.AddOrderRevenue(res.Currency, res.ModifiedAmount)
	} else {
		metrics.IncOrder(orderType, "opened")
	}
	writeJSON(w, http.StatusCreated, toAssignResponse(res))
}

func toAssignResponse(res *usecase.AssignResult) assignResponse {
	out := assignResponse{
		OrderID:        res.OrderID,
		Amount:         res.Amount,
		ModifiedAmount: res.ModifiedAmount,
		Currency:       res.Currency,
		PaidFromWallet: res.PaidFromWallet,
	}
	if res.PaymentIntent != nil {
		out.ClientSecret = res.PaymentIntent.ClientSecret
		out.IntentID = res.PaymentIntent.ID
	}
	return out
}

// ===== orders =====

type dcbConfirmRequest struct {
	OTP   string `json:"otp"`
	ICCID string `json:"iccid,omitempty"`
}

func (s *Server) handleCarrierConfirm(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	var req dcbConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OTP == "" {
		http.Error(w, "otp is required", http.StatusUnprocessableEntity)
		return
	}
	res, err := s.orderUC.ConfirmCarrierCharge(r.Context(), usecase.CarrierConfirmParams{
		UserID:  claims.Subject,
		OrderID: chi.URLParam(r, "id"),
		OTP:     req.OTP,
		ICCID:   req.ICCID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.AddOrderRevenue(res.Currency, res.ModifiedAmount)
	writeJSON(w, http.StatusOK, struct {
		OrderID  string `json:"order_id"`
		Amount   int64  `json:"amount"`
		Charged  int64  `json:"charged"`
		Currency string `json:"currency"`
		Settled  bool   `json:"settled"`
	}{res.OrderID, res.Amount, res.ModifiedAmount, res.Currency, true})
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}

	orders, err := s.orderUC.History(r.Context(), claims.Subject, offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data   []*model.Order `json:"data"`
		Offset int            `json:"offset"`
	}{Data: orders, Offset: offset})
}

func (s *Server) handleOrderGet(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	order, err := s.orderUC.GetByID(r.Context(), claims.Subject, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if err := s.orderUC.Cancel(r.Context(), claims.Subject, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== profiles =====

func (s *Server) handleProfileList(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	views, err := s.profileUC.List(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	type profileResponse struct {
		Profile    *model.UserProfile         `json:"profile"`
		Bundles    []*model.UserProfileBundle `json:"bundles"`
		Activation string                     `json:"activation"`
	}
	out := make([]profileResponse, 0, len(views))
	for _, v := range views {
		out = append(out, profileResponse{Profile: v.Profile, Bundles: v.Bundles, Activation: v.Activation})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []profileResponse `json:"data"`
	}{Data: out})
}

// ===== wallet =====

type walletTopUpRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleWalletTopUp(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	var req walletTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.orderUC.TopUpWallet(r.Context(), claims.Subject, claims.Email, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncOrder(string(model.OrderTypeWalletTopUp), "opened")
	writeJSON(w, http.StatusCreated, toAssignResponse(res))
}

type voucherRedeemRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleVoucherRedeem(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	var req voucherRedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusUnprocessableEntity)
		return
	}
	wallet, err := s.walletUC.RedeemVoucher(r.Context(), claims.Subject, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Balance  int64  `json:"balance"`
		Currency string `json:"currency"`
	}{Balance: wallet.Amount, Currency: wallet.Currency})
}

func (s *Server) handleWalletGet(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	view, err := s.walletUC.Get(r.Context(), claims.Subject, offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Balance      int64                      `json:"balance"`
		Currency     string                     `json:"currency"`
		Transactions []*model.WalletTransaction `json:"transactions"`
	}{
		Balance:      view.Wallet.Amount,
		Currency:     view.Wallet.Currency,
		Transactions: view.Transactions,
	})
}

// ===== promotions / referral =====

type promoValidateRequest struct {
	Code       string `json:"code"`
	BundleCode string `json:"bundle_code,omitempty"`
}

func (s *Server) handlePromoValidate(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	var req promoValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusUnprocessableEntity)
		return
	}

	codeType, ruleID, err := s.promoUC.ResolveCode(r.Context(), req.Code, claims.Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := struct {
		Valid          bool           `json:"valid"`
		CodeType       model.CodeType `json:"code_type"`
		ResultAmount   *int64         `json:"result_amount,omitempty"`
		CashbackAmount *int64         `json:"cashback_amount,omitempty"`
		Message        string         `json:"message,omitempty"`
	}{Valid: true, CodeType: codeType}

	// Price preview requires the bundle; resolve it through the promotion
	// engine when one is named.
	if req.BundleCode != "" {
		preview, err := s.promoUC.PreviewForBundle(r.Context(), ruleID, req.BundleCode, codeType == model.CodeTypeReferral)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.ResultAmount = &preview.ResultAmount
		resp.CashbackAmount = &preview.Cashback
		resp.Message = preview.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePromoHistory(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	usages, err := s.promoUC.History(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.PromotionUsage `json:"data"`
	}{Data: usages})
}

type referralRedeemRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleReferralRedeem(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	var req referralRedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusUnprocessableEntity)
		return
	}
	if err := s.promoUC.RedeemReferral(r.Context(), req.Code, claims.Subject); err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncReward("referral", "pending")
	writeJSON(w, http.StatusCreated, map[string]bool{"redeemed": true})
}

// ===== shared =====

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrPromotionNotFound),
		errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrVoucherInvalid),
		errors.Is(err, domain.ErrIccidNotLinked):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrRuleConstraint):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrPromotionInactive),
		errors.Is(err, domain.ErrPromotionExpired),
		errors.Is(err, domain.ErrPromotionExhausted),
		errors.Is(err, domain.ErrSelfReferral):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrPromotionAlreadyUsed),
		errors.Is(err, domain.ErrOrderNotCancelable),
		errors.Is(err, domain.ErrBundleNotAvailable),
		errors.Is(err, domain.ErrConflictingSettlement):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrLockNotAcquired):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
