package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// HeaderOperatorKey carries the operator key. A bearer Authorization header works too.
const HeaderOperatorKey = "X-Operator-Key"

var ErrMissingKey = errors.New("operator key missing")

type Config struct {
	// bcrypt hash of the operator key. Empty disables authentication.
	OperatorKeyHash string `envconfig:"OPERATOR_KEY_HASH" default:""`
	OperatorName    string `envconfig:"OPERATOR_NAME" default:"operator"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// HashKey returns the bcrypt hash to put in OPERATOR_KEY_HASH.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckKey compares a presented key with the configured hash.
func CheckKey(hash, key string) error {
	if key == "" {
		return ErrMissingKey
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

func keyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderOperatorKey)); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}

// RequireOperator rejects requests without a valid operator key and puts the Operator in the
// request context.
func RequireOperator(config Config) func(http.Handler) http.Handler {
	if config.OperatorKeyHash == "" {
		logger.Warn("OPERATOR_KEY_HASH not set, operator endpoints are open")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := &Operator{Name: config.OperatorName, AuthenticatedAt: time.Now()}
			if config.OperatorKeyHash == "" {
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
				return
			}

			if err := CheckKey(config.OperatorKeyHash, keyFromRequest(r)); err != nil {
				logger.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				}).WithError(err).Warn("operator authentication failed")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}
