package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultClockSkew = 2 * time.Minute

// OperatorAuth configures HS256 bearer tokens for operator-only methods.
type OperatorAuth struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

type operatorAuthenticator struct {
	cfg    OperatorAuth
	parser *jwt.Parser
}

func newOperatorAuthenticator(cfg OperatorAuth) *operatorAuthenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultClockSkew
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &operatorAuthenticator{cfg: cfg, parser: jwt.NewParser(opts...)}
}

func (a *operatorAuthenticator) verify(header string) *RPCError {
	if len(a.cfg.Secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "operator authentication not configured"}
	}
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	token, err := a.parser.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		reason := "token invalid"
		if err != nil {
			reason = err.Error()
		}
		return &RPCError{Code: codeUnauthorized, Message: "invalid operator token", Data: reason}
	}
	return nil
}

func (s *Server) requireOperator(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		if authErr := s.auth.verify(r.Header.Get("Authorization")); authErr != nil {
			s.logger.Warn("operator authentication failed",
				"method", req.Method,
				"error", authErr.Message)
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		next(w, r, req)
	}
}
