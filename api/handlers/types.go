package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"powchain/blockchain"
)

const maxRequestBytes = 1 << 20

// Service is the node surface the HTTP handlers call into.
type Service interface {
	SubmitTransaction(sender, recipient string, amount float64) int64
	Mine(ctx context.Context) (blockchain.Block, error)
	Chain() (blockchain.Chain, int)
	Pending() []blockchain.Transaction
	RegisterPeers(addresses []string) ([]string, error)
	Peers() []string
	Resolve(ctx context.Context) (bool, blockchain.Chain)
}

// TransactionRequest is the body of POST /transactions/new. Pointers tell a
// missing field apart from a zero value; zero and negative amounts are fine.
type TransactionRequest struct {
	Sender    *string  `json:"sender" validate:"required"`
	Recipient *string  `json:"recipient" validate:"required"`
	Amount    *float64 `json:"amount" validate:"required"`
}

// RegisterPeersRequest is the body of POST /nodes/register.
type RegisterPeersRequest struct {
	Nodes []string `json:"nodes" validate:"required,min=1,dive,required"`
}

// MalformedRequestError is a client error: bad JSON or missing fields.
type MalformedRequestError struct {
	Reason string
	Fields []string
}

func (e *MalformedRequestError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

var validate = validator.New()

func init() {
	// report JSON field names rather than Go ones
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// decodeRequest reads a JSON body into dst and runs its validation tags.
// Every failure comes back as a *MalformedRequestError.
func decodeRequest(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &MalformedRequestError{Reason: "empty request body"}
		}
		return &MalformedRequestError{Reason: "invalid JSON format"}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return &MalformedRequestError{Reason: "missing or invalid values", Fields: fields}
		}
		return &MalformedRequestError{Reason: err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}
