package models

import "time"

// TransactionType classifies the payment intent of a UPI transaction.
type TransactionType string

const (
	TxTypeP2P     TransactionType = "P2P"
	TxTypeP2M     TransactionType = "P2M"
	TxTypeCollect TransactionType = "COLLECT"
	TxTypeRefund  TransactionType = "REFUND"
	TxTypeUnknown TransactionType = "UNKNOWN"
)

// TransactionSource identifies the channel a payment request arrived through.
type TransactionSource string

const (
	SourceSMS             TransactionSource = "SMS"
	SourceWhatsApp        TransactionSource = "WHATSAPP"
	SourceEmail           TransactionSource = "EMAIL"
	SourceAppNotification TransactionSource = "APP_NOTIFICATION"
	SourcePhoneCall       TransactionSource = "PHONE_CALL"
	SourceQRScan          TransactionSource = "QR_SCAN"
	SourceLink            TransactionSource = "LINK"
	SourceUserPay         TransactionSource = "USER_PAY"
	SourceUnknown         TransactionSource = "UNKNOWN"
)

// Transaction is a normalized UPI payment candidate assembled from a scanned
// message, a QR payload, or a pay-validation request. Amount is in rupees.
type Transaction struct {
	SenderUPI   string            `json:"senderUPI,omitempty"`
	ReceiverUPI string            `json:"receiverUPI,omitempty"`
	Amount      float64           `json:"amount"`
	Type        TransactionType   `json:"type"`
	Description string            `json:"description"`
	Source      TransactionSource `json:"source"`
	IsNewPayee  bool              `json:"isNewPayee"`
	IsRapid     bool              `json:"isRapid,omitempty"` // set when the payer fired several payments in quick succession
	Timestamp   time.Time         `json:"timestamp"`
}

// NormalizedTimestamp returns the transaction timestamp, defaulting to now.
func (t *Transaction) NormalizedTimestamp() time.Time {
	if t.Timestamp.IsZero() {
		return time.Now()
	}
	return t.Timestamp
}
