package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/infra/logging"
	"esim-reseller/internal/infra/redis"
	"esim-reseller/internal/usecase"
)

type Server struct {
	orderUC   usecase.OrderUseCase
	promoUC   usecase.PromotionUseCase
	walletUC  usecase.WalletUseCase
	webhookUC usecase.WebhookUseCase
	profileUC usecase.ProfileUseCase
	gateway   adapter.PaymentGateway
	auth      *AuthManager
	limiter   *redis.RateLimiter
	locker    redis.Locker
	log       *zerolog.Logger
}

func NewServer(
	orderUC usecase.OrderUseCase,
	promoUC usecase.PromotionUseCase,
	walletUC usecase.WalletUseCase,
	webhookUC usecase.WebhookUseCase,
	profileUC usecase.ProfileUseCase,
	gateway adapter.PaymentGateway,
	auth *AuthManager,
	limiter *redis.RateLimiter,
	locker redis.Locker,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		orderUC:   orderUC,
		promoUC:   promoUC,
		walletUC:  walletUC,
		webhookUC: webhookUC,
		profileUC: profileUC,
		gateway:   gateway,
		auth:      auth,
		limiter:   limiter,
		locker:    locker,
		log:       logger,
	}
}

// Router builds the full route tree. The payment callback stays outside the
// auth group: the gateway authenticates with its signature, not a bearer
// token.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.traceID, s.requestLog, s.recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/v1/callback/payment", s.handlePaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/api/v1/bundles/assign", s.rateLimited("assign", s.handleAssign))
		r.Post("/api/v1/bundles/assign-topup", s.rateLimited("assign_topup", s.handleAssignTopUp))
		r.Get("/api/v1/orders", s.handleOrderHistory)
		r.Get("/api/v1/orders/{id}", s.handleOrderGet)
		r.Delete("/api/v1/orders/{id}", s.handleOrderCancel)
		r.Post("/api/v1/orders/{id}/confirm-dcb", s.rateLimited("dcb_confirm", s.handleCarrierConfirm))
		r.Get("/api/v1/esims", s.handleProfileList)
		r.Post("/api/v1/wallet/topup", s.rateLimited("wallet_topup", s.handleWalletTopUp))
		r.Get("/api/v1/wallet", s.handleWalletGet)
		r.Post("/api/v1/voucher/redeem", s.handleVoucherRedeem)
		r.Post("/api/v1/promotions/validate", s.handlePromoValidate)
		r.Get("/api/v1/promotions/history", s.handlePromoHistory)
		r.Post("/api/v1/referral/redeem", s.handleReferralRedeem)
	})
	return r
}

// ===== middleware =====

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				l := logging.With(r.Context(), s.log)
				l.Error().Interface("panic", rec).Msg("panic recovered")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := withClaims(r.Context(), claims)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimited(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			claims := ClaimsFrom(r.Context())
			ok, err := s.limiter.Allow(r.Context(), redis.UserRouteKey(claims.Subject, route), 10, time.Minute)
			if err == nil && !ok {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
		}
		h(w, r)
	}
}
