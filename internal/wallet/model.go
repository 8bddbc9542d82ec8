package wallet

import (
	"cmp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	Id         string `json:"id"`
	Address    string `json:"address"`
	APIKeyHash string `json:"-"`
}

type Balance struct {
	AccountId string          `json:"account_id"`
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"balance"`
	USDValue  decimal.Decimal `json:"usd_value"`
}

// BalanceKey identifies one balance row. Units of work lock keys in Compare order.
type BalanceKey struct {
	AccountId string
	Token     string
}

func (k BalanceKey) String() string {
	return k.AccountId + "/" + k.Token
}

func (k BalanceKey) Compare(other BalanceKey) int {
	return cmp.Or(
		strings.Compare(k.AccountId, other.AccountId),
		strings.Compare(k.Token, other.Token),
	)
}

type TransactionStatus string

const (
	Pending   TransactionStatus = "pending"
	Completed TransactionStatus = "completed"
	Failed    TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool {
	return s == Completed || s == Failed
}

type Transaction struct {
	Id               string            `json:"id"`
	SenderAccountId  string            `json:"sender_id"`
	RecipientAddress string            `json:"recipient_address"`
	Token            string            `json:"token"`
	Amount           decimal.Decimal   `json:"amount"`
	Memo             *string           `json:"memo,omitempty"`
	Status           TransactionStatus `json:"status"`
	SettlementRef    string            `json:"tx_hash"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type TransactionQuery struct {
	AccountId string
	Address   string
	Token     string
	Page      int
	PageSize  int
}

func (q TransactionQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Matches is the ledger selection predicate: sent by the account or addressed to it.
func (q TransactionQuery) Matches(tx Transaction) bool {
	if q.Token != "" && tx.Token != q.Token {
		return false
	}
	return tx.SenderAccountId == q.AccountId || (q.Address != "" && tx.RecipientAddress == q.Address)
}

type TransactionPage struct {
	Total        int           `json:"total"`
	Transactions []Transaction `json:"transactions"`
}

type WalletInfo struct {
	Address  string    `json:"wallet_address"`
	Balances []Balance `json:"balances"`
}

type TransferRequest struct {
	SenderId  string
	ToAddress string
	Token     string
	Amount    string
	Memo      *string
}

type Receipt struct {
	TxId         string            `json:"tx_id"`
	TxHash       string            `json:"tx_hash"`
	Status       TransactionStatus `json:"status"`
	EstimatedFee string            `json:"estimated_fee"`
}
