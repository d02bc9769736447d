package ledger

import (
	"errors"
	"math/big"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"wallet-sync/internal/domain"
)

type ApproveWithdrawalRequest struct {
	WithdrawalID int64  `json:"withdrawal_id"`
	TxHash       string `json:"tx_hash"`
}

func (r ApproveWithdrawalRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.WithdrawalID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.TxHash, validation.Required.Error("transaction hash is required")),
	)
}

type CreditDepositRequest struct {
	TargetUserID string `json:"target_user_id"`
	Token        string `json:"token"`
	Amount       string `json:"amount"`
	TxHash       string `json:"tx_hash"`
}

func (r CreditDepositRequest) normalized() CreditDepositRequest {
	r.TargetUserID = strings.TrimSpace(r.TargetUserID)
	r.Token = strings.ToUpper(strings.TrimSpace(r.Token))
	r.Amount = strings.TrimSpace(r.Amount)
	r.TxHash = strings.TrimSpace(r.TxHash)
	return r
}

func (r CreditDepositRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TargetUserID, validation.Required, is.UUID),
		validation.Field(&r.Token, validation.Required, validation.In(supportedTokens()...)),
		validation.Field(&r.Amount, validation.Required, validation.By(positiveDecimal)),
		validation.Field(&r.TxHash, validation.Required.Error("transaction hash is required")),
	)
}

func supportedTokens() []interface{} {
	out := make([]interface{}, 0, len(domain.SupportedTokens))
	for _, t := range domain.SupportedTokens {
		out = append(out, t)
	}
	return out
}

var errAmountNotPositive = errors.New("must be a positive decimal")

func positiveDecimal(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() <= 0 || strings.ContainsAny(s, "/eExXpP_") {
		return errAmountNotPositive
	}
	return nil
}
